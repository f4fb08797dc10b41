package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/mock/gomock"

	"github.com/stretchr/testify/suite"

	"realhub/internal/favorite/handler/mocks"
	"realhub/internal/favorite/models"
	"realhub/internal/identity"
	id "realhub/pkg/domain"
	dErrors "realhub/pkg/domain-errors"
	"realhub/pkg/testutil"
)

type FavoriteHandlerSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	favorites *mocks.MockService
	resolver  *mocks.MockActorResolver
	router    chi.Router
	actor     identity.Actor
}

func TestFavoriteHandlerSuite(t *testing.T) {
	suite.Run(t, new(FavoriteHandlerSuite))
}

func (s *FavoriteHandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.favorites = mocks.NewMockService(s.ctrl)
	s.resolver = mocks.NewMockActorResolver(s.ctrl)
	s.actor = identity.Actor{ID: id.UserID(uuid.New()), Role: identity.RoleBuyerRenter, Verified: true}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.router = chi.NewRouter()
	New(s.favorites, s.resolver, logger).Register(s.router)
}

func (s *FavoriteHandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *FavoriteHandlerSuite) request(method, path, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	return testutil.WithActorID(req, s.actor.ID)
}

func (s *FavoriteHandlerSuite) TestAdd() {
	propertyID := id.PropertyID(uuid.New())

	s.Run("created", func() {
		favorite := &models.Favorite{
			ID:         id.FavoriteID(uuid.New()),
			UserID:     s.actor.ID,
			PropertyID: propertyID,
			CreatedAt:  time.Now().UTC(),
		}
		s.resolver.EXPECT().Resolve(gomock.Any()).Return(s.actor, nil)
		s.favorites.EXPECT().Add(gomock.Any(), s.actor, propertyID).Return(favorite, nil)

		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, s.request(http.MethodPost, "/favorites", `{"property_id":"`+propertyID.String()+`"}`))

		s.Equal(http.StatusCreated, rec.Code)
		var got models.Favorite
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &got))
		s.Equal(favorite.ID, got.ID)
	})

	s.Run("missing property_id", func() {
		s.resolver.EXPECT().Resolve(gomock.Any()).Return(s.actor, nil)

		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, s.request(http.MethodPost, "/favorites", `{}`))

		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("malformed property_id", func() {
		s.resolver.EXPECT().Resolve(gomock.Any()).Return(s.actor, nil)

		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, s.request(http.MethodPost, "/favorites", `{"property_id":"not-a-uuid"}`))

		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("service conflict maps to 409", func() {
		s.resolver.EXPECT().Resolve(gomock.Any()).Return(s.actor, nil)
		s.favorites.EXPECT().Add(gomock.Any(), s.actor, propertyID).
			Return(nil, dErrors.New(dErrors.CodeConflict, "property already favorited"))

		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, s.request(http.MethodPost, "/favorites", `{"property_id":"`+propertyID.String()+`"}`))

		s.Equal(http.StatusConflict, rec.Code)
		s.Contains(rec.Body.String(), "already favorited")
	})

	s.Run("unauthenticated request never reaches the service", func() {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/favorites", strings.NewReader(`{}`))
		s.router.ServeHTTP(rec, req)

		s.Equal(http.StatusUnauthorized, rec.Code)
	})
}

func (s *FavoriteHandlerSuite) TestList() {
	s.Run("returns favorites with count", func() {
		favorites := []*models.Favorite{
			{ID: id.FavoriteID(uuid.New()), UserID: s.actor.ID, PropertyID: id.PropertyID(uuid.New())},
			{ID: id.FavoriteID(uuid.New()), UserID: s.actor.ID, PropertyID: id.PropertyID(uuid.New())},
		}
		s.resolver.EXPECT().Resolve(gomock.Any()).Return(s.actor, nil)
		s.favorites.EXPECT().List(gomock.Any(), s.actor).Return(favorites, nil)

		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, s.request(http.MethodGet, "/favorites", ""))

		s.Equal(http.StatusOK, rec.Code)
		var body struct {
			Favorites []*models.Favorite `json:"favorites"`
			Count     int                `json:"count"`
		}
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
		s.Equal(2, body.Count)
		s.Len(body.Favorites, 2)
	})

	s.Run("resolver failure is surfaced", func() {
		s.resolver.EXPECT().Resolve(gomock.Any()).
			Return(identity.Actor{}, dErrors.New(dErrors.CodeForbidden, "unknown principal"))

		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, s.request(http.MethodGet, "/favorites", ""))

		s.Equal(http.StatusForbidden, rec.Code)
	})
}

func (s *FavoriteHandlerSuite) TestRemove() {
	favoriteID := id.FavoriteID(uuid.New())

	s.Run("no content on success", func() {
		s.resolver.EXPECT().Resolve(gomock.Any()).Return(s.actor, nil)
		s.favorites.EXPECT().Remove(gomock.Any(), s.actor, favoriteID).Return(nil)

		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, s.request(http.MethodDelete, "/favorites/"+favoriteID.String(), ""))

		s.Equal(http.StatusNoContent, rec.Code)
	})

	s.Run("missing favorite maps to 404", func() {
		s.resolver.EXPECT().Resolve(gomock.Any()).Return(s.actor, nil)
		s.favorites.EXPECT().Remove(gomock.Any(), s.actor, favoriteID).
			Return(dErrors.New(dErrors.CodeNotFound, "favorite not found"))

		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, s.request(http.MethodDelete, "/favorites/"+favoriteID.String(), ""))

		s.Equal(http.StatusNotFound, rec.Code)
	})

	s.Run("malformed id maps to 400", func() {
		s.resolver.EXPECT().Resolve(gomock.Any()).Return(s.actor, nil)

		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, s.request(http.MethodDelete, "/favorites/not-a-uuid", ""))

		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

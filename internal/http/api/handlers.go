package api

import (
	"errors"
	"net/http"
	"net/mail"
	"slices"
	"strings"
	"time"

	"media-analytics-api/internal/analytics"
	"media-analytics-api/internal/db"
	"media-analytics-api/internal/models"
	"media-analytics-api/internal/security"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token  string `json:"token"`
	UserID uint64 `json:"user_id"`
}

func (a *api) register(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(in.Email))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid email")
		return
	}
	hash, err := security.HashPassword(in.Password)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	u := models.User{Email: strings.ToLower(addr.Address), PasswordHash: hash, CreatedAt: db.Time(time.Now())}
	if err := a.deps.DB.WithContext(r.Context()).Create(&u).Error; err != nil {
		if db.IsUniqueViolation(err) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		log.WithError(err).Error("api: create user")
		writeError(w, http.StatusInternalServerError, "could not create user")
		return
	}
	a.respondToken(w, http.StatusCreated, u.ID)
}

func (a *api) login(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var u models.User
	err := a.deps.DB.WithContext(r.Context()).
		Where("email = ?", strings.ToLower(strings.TrimSpace(in.Email))).
		First(&u).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		log.WithError(err).Error("api: load user")
		writeError(w, http.StatusInternalServerError, "could not log in")
		return
	}
	if err != nil || security.CheckPassword(u.PasswordHash, in.Password) != nil {
		writeError(w, http.StatusUnauthorized, security.ErrInvalidCredentials.Error())
		return
	}
	a.respondToken(w, http.StatusOK, u.ID)
}

func (a *api) respondToken(w http.ResponseWriter, status int, userID uint64) {
	token, err := security.IssueToken(a.deps.JWTSecret, userID, a.deps.JWTExpiry)
	if err != nil {
		log.WithError(err).Error("api: issue token")
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	writeJSON(w, status, tokenResponse{Token: token, UserID: userID})
}

type mediaInput struct {
	Title string `json:"title"`
	Kind  string `json:"kind"`
	URL   string `json:"url"`
}

func (a *api) createMedia(w http.ResponseWriter, r *http.Request) {
	owner, _ := UserFromContext(r.Context())

	var in mediaInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Kind = strings.ToLower(strings.TrimSpace(in.Kind))
	if in.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if !slices.Contains(models.MediaKinds, in.Kind) {
		writeError(w, http.StatusBadRequest, "kind must be one of "+strings.Join(models.MediaKinds, ", "))
		return
	}

	m := models.Media{OwnerID: owner, Title: in.Title, Kind: in.Kind, URL: strings.TrimSpace(in.URL), CreatedAt: db.Time(time.Now())}
	if err := a.deps.DB.WithContext(r.Context()).Create(&m).Error; err != nil {
		log.WithError(err).Error("api: create media")
		writeError(w, http.StatusInternalServerError, "could not create media")
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// loadMedia escreve 400/404/500 e devolve ok=false quando não encontra.
func (a *api) loadMedia(w http.ResponseWriter, r *http.Request) (models.Media, bool) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return models.Media{}, false
	}
	var m models.Media
	if err := a.deps.DB.WithContext(r.Context()).First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "media not found")
			return models.Media{}, false
		}
		log.WithError(err).WithField("media_id", id).Error("api: load media")
		writeError(w, http.StatusInternalServerError, "could not load media")
		return models.Media{}, false
	}
	return m, true
}

func (a *api) getMedia(w http.ResponseWriter, r *http.Request) {
	m, ok := a.loadMedia(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *api) recordView(w http.ResponseWriter, r *http.Request) {
	m, ok := a.loadMedia(w, r)
	if !ok {
		return
	}

	v := models.View{
		MediaID:   m.ID,
		ViewerKey: string(a.viewerIdentity()(r)),
		UserAgent: r.UserAgent(),
	}
	if uid, ok := UserFromContext(r.Context()); ok {
		v.UserID = &uid
	}

	saved, err := a.analytics.RecordView(r.Context(), v)
	if err != nil {
		log.WithError(err).WithField("media_id", m.ID).Error("api: record view")
		writeError(w, http.StatusInternalServerError, "could not record view")
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (a *api) mediaAnalytics(w http.ResponseWriter, r *http.Request) {
	m, ok := a.loadMedia(w, r)
	if !ok {
		return
	}
	if uid, _ := UserFromContext(r.Context()); uid != m.OwnerID {
		writeError(w, http.StatusForbidden, "only the owner can read analytics")
		return
	}
	days, err := intQuery(r, "days", analytics.DefaultDays)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	since := time.Now().AddDate(0, 0, -analytics.ClampDays(days))
	sum, err := a.analytics.MediaSummary(r.Context(), m.ID, since)
	if err != nil {
		log.WithError(err).WithField("media_id", m.ID).Error("api: media summary")
		writeError(w, http.StatusInternalServerError, "could not compute analytics")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (a *api) topMedia(w http.ResponseWriter, r *http.Request) {
	uid, _ := UserFromContext(r.Context())
	days, err := intQuery(r, "days", analytics.DefaultDays)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := intQuery(r, "limit", analytics.DefaultTop)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	since := time.Now().AddDate(0, 0, -analytics.ClampDays(days))
	top, err := a.analytics.TopMedia(r.Context(), uid, since, limit)
	if err != nil {
		log.WithError(err).Error("api: top media")
		writeError(w, http.StatusInternalServerError, "could not compute analytics")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": top})
}

func (a *api) rateLimitStats(w http.ResponseWriter, r *http.Request) {
	if a.deps.StatsReader == nil {
		writeError(w, http.StatusNotFound, "rate limit stats disabled")
		return
	}
	sum, err := a.deps.StatsReader.Summary(r.Context())
	if err != nil {
		log.WithError(err).Warn("api: rate limit stats")
		writeError(w, http.StatusServiceUnavailable, "stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

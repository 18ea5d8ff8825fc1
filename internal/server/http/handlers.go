package httpserver

import (
	"errors"
	"net/http"

	"github.com/gofrs/uuid/v5"
	"github.com/labstack/echo/v4"

	"github.com/and161185/course-stream/internal/convert"
	"github.com/and161185/course-stream/internal/errs"
	"github.com/and161185/course-stream/internal/model"
	"github.com/and161185/course-stream/internal/service"
)

const msgVideoRemoved = "Video link removed successfully"

type videoRequest struct {
	VideoURL                 string `json:"video_url" validate:"required,url"`
	VideoTitle               string `json:"video_title" validate:"required,max=255"`
	EstimatedDurationSeconds int    `json:"estimated_duration_seconds" validate:"required,min=1"`
	VideoSource              string `json:"video_source" validate:"omitempty,max=50"`
}

func (r videoRequest) input() service.VideoInput {
	return service.VideoInput{
		URL:             r.VideoURL,
		Title:           r.VideoTitle,
		DurationSeconds: r.EstimatedDurationSeconds,
		Source:          r.VideoSource,
	}
}

type deepLinkLoginRequest struct {
	Token string `json:"token"`
}

// moduleTarget reads the actor and the :course/:module path params.
func moduleTarget(c echo.Context) (actor, course, module uuid.UUID, err error) {
	actor, err = requireActor(c)
	if err != nil {
		return uuid.Nil, uuid.Nil, uuid.Nil, err
	}
	course, err1 := uuid.FromString(c.Param("course"))
	module, err2 := uuid.FromString(c.Param("module"))
	if err1 != nil || err2 != nil {
		return uuid.Nil, uuid.Nil, uuid.Nil, errs.ErrNotFound
	}
	return actor, course, module, nil
}

func bindVideo(c echo.Context) (videoRequest, error) {
	var req videoRequest
	if err := c.Bind(&req); err != nil {
		return req, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return req, err
	}
	return req, nil
}

func (s *server) addVideo(c echo.Context) error {
	actor, course, module, err := moduleTarget(c)
	if err != nil {
		return err
	}
	req, err := bindVideo(c)
	if err != nil {
		return err
	}
	m, err := s.opts.Videos.Add(c.Request().Context(), actor, course, module, req.input())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, convert.ToAddedVideo(m))
}

func (s *server) updateVideo(c echo.Context) error {
	actor, course, module, err := moduleTarget(c)
	if err != nil {
		return err
	}
	req, err := bindVideo(c)
	if err != nil {
		return err
	}
	m, err := s.opts.Videos.Update(c.Request().Context(), actor, course, module, req.input())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, convert.ToUpdatedVideo(m))
}

func (s *server) removeVideo(c echo.Context) error {
	actor, course, module, err := moduleTarget(c)
	if err != nil {
		return err
	}
	if err := s.opts.Videos.Remove(c.Request().Context(), actor, course, module); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": msgVideoRemoved})
}

func (s *server) streamToken(c echo.Context) error {
	user, course, module, err := moduleTarget(c)
	if err != nil {
		return err
	}
	g, err := s.opts.Tokens.IssueStream(c.Request().Context(), user, course, module)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, convert.ToStreamToken(g))
}

// stream redirects to the video. The URL is only ever a Location header.
func (s *server) stream(c echo.Context) error {
	tok := c.QueryParam("token")
	if tok == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Token is required.")
	}
	target, err := s.opts.Stream.Redirect(c.Request().Context(), tok)
	if err != nil {
		return err
	}
	h := c.Response().Header()
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	return c.Redirect(http.StatusFound, target.URL)
}

func (s *server) deepLink(c echo.Context) error {
	user, err := requireActor(c)
	if err != nil {
		return err
	}
	course, err1 := uuid.FromString(c.QueryParam("course_id"))
	module, err2 := uuid.FromString(c.QueryParam("module_id"))
	if err1 != nil || err2 != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "course_id and module_id are required.")
	}
	p := service.DetectPlatform(c.QueryParam("platform"), c.Request().UserAgent())
	g, err := s.opts.Tokens.IssueDeepLink(c.Request().Context(), user, course, module, p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, convert.ToDeepLink(g))
}

func (s *server) deepLinkLogin(c echo.Context) error {
	var req deepLinkLoginRequest
	if err := c.Bind(&req); err != nil || req.Token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Token is required.")
	}
	src := model.Source{IP: c.RealIP(), UserAgent: c.Request().UserAgent()}
	login, err := s.opts.DeepLinks.Redeem(c.Request().Context(), req.Token, src)
	if err != nil {
		if errors.Is(err, errs.ErrAccessRevoked) {
			return echo.NewHTTPError(http.StatusUnauthorized, msgAccessRevoked)
		}
		return err
	}
	return c.JSON(http.StatusOK, convert.ToLogin(login))
}

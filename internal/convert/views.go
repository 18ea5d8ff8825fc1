// Package convert maps domain values to the JSON views returned by the HTTP API.
// Views never carry video ciphertext or plaintext URLs.
package convert

import (
	"time"

	"github.com/and161185/course-stream/internal/model"
	"github.com/and161185/course-stream/internal/service"
)

// --- helpers ---

func ts(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// --- videos ---

// VideoView is the public view of a module's video link.
type VideoView struct {
	VideoID         string `json:"video_id"`
	ModuleID        string `json:"module_id"`
	Title           string `json:"title"`
	DurationSeconds int    `json:"estimated_duration_seconds"`
	Source          string `json:"video_source"`
	AddedAt         string `json:"added_at,omitempty"`
	UpdatedAt       string `json:"updated_at,omitempty"`
}

func videoView(m *model.Module) VideoView {
	v := VideoView{VideoID: m.ID.String(), ModuleID: m.ID.String()}
	if m.Video != nil {
		v.Title = m.Video.Title
		v.DurationSeconds = m.Video.DurationSeconds
		v.Source = m.Video.Source
	}
	return v
}

// ToAddedVideo builds the view returned after registration.
func ToAddedVideo(m *model.Module) VideoView {
	v := videoView(m)
	if m.Video != nil {
		v.AddedAt = ts(m.Video.AddedAt)
	}
	return v
}

// ToUpdatedVideo builds the view returned after an overwrite.
func ToUpdatedVideo(m *model.Module) VideoView {
	v := videoView(m)
	if m.Video != nil {
		v.UpdatedAt = ts(m.Video.AddedAt)
	}
	return v
}

// --- tokens ---

// StreamTokenView is the response to a stream token request.
type StreamTokenView struct {
	StreamToken string `json:"stream_token"`
	ExpiresIn   int64  `json:"expires_in"`
	VideoTitle  string `json:"video_title"`
}

// ToStreamToken converts a StreamGrant.
func ToStreamToken(g service.StreamGrant) StreamTokenView {
	return StreamTokenView{StreamToken: g.Token, ExpiresIn: int64(g.ExpiresIn / time.Second), VideoTitle: g.VideoTitle}
}

// DeepLinkView is the response to a deep link request.
type DeepLinkView struct {
	DeepLink       string `json:"deep_link"`
	FallbackURL    string `json:"fallback_url"`
	TokenExpiresIn int64  `json:"token_expires_in"`
	ModuleTitle    string `json:"module_title"`
}

// ToDeepLink converts a DeepLinkGrant.
func ToDeepLink(g service.DeepLinkGrant) DeepLinkView {
	return DeepLinkView{
		DeepLink:       g.DeepLink,
		FallbackURL:    g.FallbackURL,
		TokenExpiresIn: int64(g.ExpiresIn / time.Second),
		ModuleTitle:    g.ModuleTitle,
	}
}

// --- login ---

// UserView is the profile returned with fresh credentials.
type UserView struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	FullName  string `json:"full_name"`
	Role      string `json:"role"`
	RoleID    int    `json:"role_id"`
}

// AbilityRuleView is one client permission rule.
type AbilityRuleView struct {
	Action  string `json:"action"`
	Subject string `json:"subject"`
}

// LoginView is the deep-link login response.
type LoginView struct {
	AccessToken      string            `json:"accessToken"`
	UserData         UserView          `json:"userData"`
	UserAbilityRules []AbilityRuleView `json:"userAbilityRules"`
}

// ToUser converts a user profile.
func ToUser(u *model.User) UserView {
	if u == nil {
		return UserView{}
	}
	full := u.FirstName
	if u.LastName != "" {
		if full != "" {
			full += " "
		}
		full += u.LastName
	}
	return UserView{
		ID:        u.ID.String(),
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		FullName:  full,
		Role:      u.Role.String(),
		RoleID:    int(u.Role),
	}
}

// ToLogin converts a redemption result.
func ToLogin(l service.Login) LoginView {
	rules := make([]AbilityRuleView, 0, len(l.Rules))
	for _, r := range l.Rules {
		rules = append(rules, AbilityRuleView{Action: r.Action, Subject: r.Subject})
	}
	return LoginView{AccessToken: l.Tokens.AccessToken, UserData: ToUser(l.User), UserAbilityRules: rules}
}

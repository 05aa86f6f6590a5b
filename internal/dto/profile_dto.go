package dto

type UpdateProfileRequest struct {
	Name           *string `json:"name,omitempty"`
	Phone          *string `json:"phone,omitempty"`
	Age            *int    `json:"age,omitempty"`
	LastPeriodDate *string `json:"last_period_date,omitempty"` // YYYY-MM-DD
}

type AvatarResponse struct {
	AvatarURL string `json:"avatar_url"`
}

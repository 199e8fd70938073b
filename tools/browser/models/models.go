package models

// Cookie is a browser cookie in a form that survives JSON round trips
// independent of the driving engine.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"` // seconds since epoch, <= 0 for session cookies
	HTTPOnly bool    `json:"http_only"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"same_site,omitempty"`
}

// Viewport is a browser window size in CSS pixels.
type Viewport struct {
	Width  int64 `json:"width" mapstructure:"width"`
	Height int64 `json:"height" mapstructure:"height"`
}

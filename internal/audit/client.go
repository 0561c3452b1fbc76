package audit

import "github.com/mssola/useragent"

// Client is what the User-Agent header says about the caller of an admin
// endpoint: scripts and crawlers show up with Bot set.
type Client struct {
	Browser        string `json:"browser,omitempty"`
	BrowserVersion string `json:"browser_version,omitempty"`
	OS             string `json:"os,omitempty"`
	Bot            bool   `json:"bot,omitempty"`
}

// ParseClient describes the caller behind a User-Agent header. An empty
// header yields the zero Client.
func ParseClient(header string) Client {
	if header == "" {
		return Client{}
	}
	ua := useragent.New(header)
	name, version := ua.Browser()
	return Client{
		Browser:        name,
		BrowserVersion: version,
		OS:             ua.OS(),
		Bot:            ua.Bot(),
	}
}

// Package meta talks to the Graph API for ads and Instagram publishing.
package meta

import (
	"fmt"
	"strings"
)

// GraphError is the platform's error object.
type GraphError struct {
	Message     string `json:"message"`
	Type        string `json:"type"`
	Code        int    `json:"code"`
	Subcode     int    `json:"error_subcode"`
	UserTitle   string `json:"error_user_title"`
	UserMessage string `json:"error_user_msg"`
	FBTraceID   string `json:"fbtrace_id"`
	StatusCode  int    `json:"-"`
}

func (e *GraphError) Error() string {
	var b strings.Builder
	if e.Code != 0 {
		fmt.Fprintf(&b, "(#%d", e.Code)
		if e.Subcode != 0 {
			fmt.Fprintf(&b, "/%d", e.Subcode)
		}
		b.WriteString(") ")
	}
	b.WriteString(e.Message)
	if e.UserMessage != "" && e.UserMessage != e.Message {
		b.WriteString(" - ")
		b.WriteString(e.UserMessage)
	}
	return b.String()
}

type AdAccount struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	AccountStatus int    `json:"account_status"`
	Currency      string `json:"currency"`
}

type InstagramAccount struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type Page struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	AccessToken string            `json:"access_token"`
	Phone       string            `json:"phone"`
	Website     string            `json:"website"`
	Instagram   *InstagramAccount `json:"instagram_business_account"`
	Picture     *struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	} `json:"picture"`
}

func (p Page) PictureURL() string {
	if p.Picture == nil {
		return ""
	}
	return p.Picture.Data.URL
}

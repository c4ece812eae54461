package models

import "time"

// Link is a page on a company website chosen for the brochure.
type Link struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Page is the text content fetched for a selected link.
type Page struct {
	Type string `json:"type"`
	URL  string `json:"url"`
	Text string `json:"text"`
}

// Contact holds the contact details found for a company.
type Contact struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Website string `json:"website,omitempty"`
}

// Brochure is a generated company brochure.
type Brochure struct {
	ID        string    `json:"id"`
	Company   string    `json:"company"`
	URL       string    `json:"url"`
	Model     string    `json:"model"`
	Markdown  string    `json:"markdown"`
	Links     []Link    `json:"links"`
	Contact   *Contact  `json:"contact,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

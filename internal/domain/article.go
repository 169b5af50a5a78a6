package domain

import "time"

// RawArticle is one fetched document prior to classification.
type RawArticle struct {
	Source            string
	Title             string
	TitleTranslated   string
	Content           string
	ContentTranslated string
	Language          string
	URL               string
	ScrapedAt         time.Time
	PublishedAt       time.Time
}

// BestTitle prefers the translated title when one exists.
func (a RawArticle) BestTitle() string {
	if a.TitleTranslated != "" {
		return a.TitleTranslated
	}
	return a.Title
}

// BestContent prefers the translated body when one exists.
func (a RawArticle) BestContent() string {
	if a.ContentTranslated != "" {
		return a.ContentTranslated
	}
	return a.Content
}

package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"sentinel/internal/domain"
	"sentinel/internal/ports"
	"sentinel/internal/ratelimit"
)

// ErrNotRelevant marks content that classification decided not to keep:
// a vulnerability-flagged reply without an extractable CVE identifier.
var ErrNotRelevant = errors.New("not relevant")

const (
	// maxPromptChars truncates article bodies before prompting.
	maxPromptChars = 3000
	// translateChunk bounds a single translation request.
	translateChunk = 5000

	targetLanguage = "en"
)

const promptTemplate = `You are a security threat intelligence assistant, returning a json report in my specified format.
Given this text:
---
%s
---
Return a SINGLE JSON object with ALL of the following fields, and nothing else.

type: If this contains a unique and identifiable CVE, set this to CVE. Otherwise set it to News.
cve_id: A list of all identifiable CVE numbers. If none is present, set cve_id to "Unknown" and type to News.
severity: Your best estimate of incident severity: Low, Medium, High or Critical.
cvss_score: If a CVSS score is present in the text, extract it as a float. Otherwise provide a reasoned estimate between 0.0 and 10.0, avoiding overestimation.
summary: A 2-3 sentence compact summary of the vulnerability, exploitation process, and affected machines.
intrigue: A number from 1 to 10 rating how intriguing this information is for someone following cybersecurity updates.
affected_products: A simple list of affected products as strings.

Return nothing besides this exact JSON format. Do not explain your answers.
{
  "type": "CVE",
  "cve_id": ["CVE-2023-12345"],
  "severity": "High",
  "cvss_score": 7.2,
  "summary": "Concise explanation of the vulnerability and exploitation details.",
  "intrigue": 7,
  "affected_products": ["Product A", "Product B"]
}`

// Engine turns raw articles into structured, language-normalized records.
type Engine struct {
	chat       ports.ChatClient
	translator ports.Translator
	limiter    *ratelimit.Limiter
	logger     *slog.Logger
}

// NewEngine wires the classification backend with an optional translator.
func NewEngine(chat ports.ChatClient, translator ports.Translator, limiter *ratelimit.Limiter, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		chat:       chat,
		translator: translator,
		limiter:    limiter,
		logger:     logger,
	}
}

// Classify translates the article when needed, asks the model for a
// structured report, and builds the classified record. Malformed model
// output surfaces as ErrMalformedResponse; vulnerability-flagged content
// without a CVE identifier surfaces as ErrNotRelevant. Both are soft
// failures at the pipeline level.
func (e *Engine) Classify(ctx context.Context, article domain.RawArticle) (domain.ClassifiedRecord, error) {
	if e.chat == nil {
		return domain.ClassifiedRecord{}, errors.New("classification backend not configured")
	}

	article = e.translate(ctx, article)

	text := article.BestContent()
	if strings.TrimSpace(text) == "" {
		text = article.BestTitle()
	}
	text = truncateToRune(text, maxPromptChars)

	if e.limiter != nil {
		if err := e.limiter.Acquire(ctx, "llm"); err != nil {
			return domain.ClassifiedRecord{}, fmt.Errorf("classify %s: %w", article.URL, err)
		}
	}

	reply, err := e.chat.Complete(ctx, fmt.Sprintf(promptTemplate, text))
	if err != nil {
		return domain.ClassifiedRecord{}, fmt.Errorf("classify %s: %w", article.URL, err)
	}

	result, err := ParseResult(reply)
	if err != nil {
		return domain.ClassifiedRecord{}, fmt.Errorf("classify %s: %w", article.URL, err)
	}

	return e.buildRecord(article, result)
}

func (e *Engine) buildRecord(article domain.RawArticle, result Result) (domain.ClassifiedRecord, error) {
	published := article.PublishedAt
	if published.IsZero() {
		published = article.ScrapedAt
	}

	if result.Kind == domain.KindVulnerability {
		if len(result.CVEIDs) == 0 {
			e.logger.Debug("vulnerability reply without CVE id, dropping", "url", article.URL)
			return domain.ClassifiedRecord{}, fmt.Errorf("classify %s: %w", article.URL, ErrNotRelevant)
		}
		return domain.ClassifiedRecord{
			Kind: domain.KindVulnerability,
			Vuln: &domain.Vulnerability{
				CVEID:            result.CVEIDs[0],
				Title:            article.Title,
				TitleTranslated:  article.TitleTranslated,
				Summary:          result.Summary,
				Severity:         result.Severity,
				CVSSScore:        result.CVSSScore,
				AffectedProducts: result.AffectedProducts,
				PublishedAt:      published,
				Language:         article.Language,
				Source:           article.Source,
				URL:              article.URL,
				Intrigue:         result.Intrigue,
			},
		}, nil
	}

	return domain.ClassifiedRecord{
		Kind: domain.KindNews,
		News: &domain.NewsItem{
			Title:           article.Title,
			TitleTranslated: article.TitleTranslated,
			Summary:         result.Summary,
			PublishedAt:     published,
			Language:        article.Language,
			Source:          article.Source,
			URL:             article.URL,
			Intrigue:        result.Intrigue,
		},
	}, nil
}

// translate fills the translated title and body for non-English articles.
// When the translation backend is down, classification proceeds on the
// original title only instead of failing the article.
func (e *Engine) translate(ctx context.Context, article domain.RawArticle) domain.RawArticle {
	if article.Language == targetLanguage || article.Language == "" || e.translator == nil {
		return article
	}
	if article.TitleTranslated != "" && article.ContentTranslated != "" {
		return article
	}

	if e.limiter != nil {
		if err := e.limiter.Acquire(ctx, "translate"); err != nil {
			e.logger.Warn("translation throttled, classifying title only",
				"url", article.URL, "error", err)
			return titleOnly(article)
		}
	}

	title, err := e.translator.Translate(ctx, article.Title, article.Language)
	if err != nil {
		e.logger.Warn("translation unavailable, classifying title only",
			"url", article.URL, "error", err)
		return titleOnly(article)
	}
	article.TitleTranslated = title

	var translated []string
	for _, chunk := range chunkText(article.Content, translateChunk) {
		part, err := e.translator.Translate(ctx, chunk, article.Language)
		if err != nil {
			e.logger.Warn("body translation failed mid-way, keeping partial",
				"url", article.URL, "error", err)
			break
		}
		translated = append(translated, part)
	}
	article.ContentTranslated = strings.Join(translated, "\n")
	return article
}

// titleOnly strips the body so the prompt is built from the title alone.
// Used when the translated body cannot be produced.
func titleOnly(article domain.RawArticle) domain.RawArticle {
	article.Content = ""
	article.ContentTranslated = ""
	return article
}

// chunkText splits text into pieces of at most max bytes, preferring to
// break on the last newline or space inside each piece. Cuts never land
// inside a multi-byte rune.
func chunkText(text string, max int) []string {
	var chunks []string
	for start := 0; start < len(text); {
		end := start + max
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			break
		}
		chunk := text[start:end]
		breakPos := strings.LastIndexByte(chunk, '\n')
		if space := strings.LastIndexByte(chunk, ' '); space > breakPos {
			breakPos = space
		}
		if breakPos > 0 {
			end = start + breakPos
		} else {
			for end > start+1 && !utf8.RuneStart(text[end]) {
				end--
			}
		}
		chunks = append(chunks, text[start:end])
		start = end
	}
	return chunks
}

// truncateToRune cuts s to at most max bytes without splitting a rune.
func truncateToRune(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

var _ ports.Classifier = (*Engine)(nil)

package daangn

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"market-search/models"
)

// ErrShapeMismatch is returned by a parser when the body is not the shape it
// understands. The chain moves on to the next parser.
var ErrShapeMismatch = errors.New("response shape mismatch")

// ErrNoShape is returned when no parser in the chain accepted the body.
var ErrNoShape = errors.New("no parser recognised the response")

const articlePageSchema = `{
  "type": "object",
  "required": ["allPage"],
  "properties": {
    "allPage": {
      "type": "object",
      "required": ["fleamarketArticles"],
      "properties": {
        "fleamarketArticles": {
          "type": "array",
          "items": {
            "type": "object",
            "properties": {
              "title": {"type": ["string", "null"]},
              "href": {"type": ["string", "null"]},
              "url": {"type": ["string", "null"]},
              "thumbnail": {"type": ["string", "null"]},
              "status": {"type": ["string", "null"]}
            }
          }
        }
      }
    }
  }
}`

var compileArticleSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("article-page.json", strings.NewReader(articlePageSchema)); err != nil {
		return nil, err
	}
	return c.Compile("article-page.json")
})

// parseInput is what every parser needs besides the body.
type parseInput struct {
	body    []byte
	region  models.Region
	baseURL string
	now     time.Time
}

type parser struct {
	shape string
	parse func(in parseInput) ([]*models.Listing, error)
}

// parsers is tried in order: typed JSON, embedded JSON-LD, then raw markup.
var parsers = []parser{
	{shape: "json", parse: parseArticleJSON},
	{shape: "json-ld", parse: parseStructuredData},
	{shape: "markup", parse: parseMarkup},
}

// extractListings runs the parser chain and reports which shape matched.
func extractListings(in parseInput) ([]*models.Listing, string, error) {
	for _, p := range parsers {
		listings, err := p.parse(in)
		if errors.Is(err, ErrShapeMismatch) {
			continue
		}
		if err != nil {
			return nil, p.shape, err
		}
		return listings, p.shape, nil
	}
	return nil, "", ErrNoShape
}

func looksLikeJSON(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

// --- shape A: typed JSON -----------------------------------------------------

type articlePage struct {
	AllPage struct {
		Articles []article `json:"fleamarketArticles"`
	} `json:"allPage"`
}

type article struct {
	ID        models.ID `json:"id"`
	Title     string    `json:"title"`
	Href      string    `json:"href"`
	URL       string    `json:"url"`
	Price     flexPrice `json:"price"`
	Thumbnail string    `json:"thumbnail"`
	CreatedAt string    `json:"createdAt"`
	BoostedAt string    `json:"boostedAt"`
	Region    struct {
		Name string `json:"name"`
	} `json:"region"`
	Content string `json:"content"`
	Status  string `json:"status"`
}

func parseArticleJSON(in parseInput) ([]*models.Listing, error) {
	if !looksLikeJSON(in.body) {
		return nil, ErrShapeMismatch
	}

	var doc interface{}
	if err := json.Unmarshal(in.body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShapeMismatch, err)
	}
	schema, err := compileArticleSchema()
	if err != nil {
		return nil, fmt.Errorf("compile article schema: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShapeMismatch, err)
	}

	var page articlePage
	if err := json.Unmarshal(in.body, &page); err != nil {
		return nil, fmt.Errorf("decode articles: %w", err)
	}

	listings := make([]*models.Listing, 0, len(page.AllPage.Articles))
	for _, a := range page.AllPage.Articles {
		link := a.Href
		if link == "" {
			link = a.URL
		}
		if a.Title == "" || link == "" {
			continue
		}
		link = absoluteURL(in.baseURL, link)

		id := string(a.ID)
		if id == "" {
			id = lastPathSegment(link)
		}
		regionName := a.Region.Name
		if regionName == "" {
			regionName = in.region.Name3
		}

		created := parseTimestamp(a.CreatedAt)
		boosted := parseTimestamp(a.BoostedAt)
		updated := created
		if boosted != nil {
			updated = boosted
		}

		listings = append(listings, newListing(in.region, listingFields{
			id:         id,
			title:      a.Title,
			price:      int64(a.Price),
			regionName: regionName,
			img:        a.Thumbnail,
			link:       link,
			timeAgo:    bumpLabel(created, boosted, in.now),
			content:    a.Content,
			createdAt:  created,
			updatedAt:  updated,
			status:     a.Status,
		}))
	}
	return listings, nil
}

// --- shape B: embedded JSON-LD ----------------------------------------------

type itemList struct {
	ItemListElement []struct {
		Item struct {
			Name   string          `json:"name"`
			URL    string          `json:"url"`
			Image  json.RawMessage `json:"image"`
			Offers struct {
				Price        flexPrice `json:"price"`
				Availability string    `json:"availability"`
			} `json:"offers"`
		} `json:"item"`
	} `json:"itemListElement"`
}

func parseStructuredData(in parseInput) ([]*models.Listing, error) {
	if looksLikeJSON(in.body) {
		return nil, ErrShapeMismatch
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(in.body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShapeMismatch, err)
	}

	var (
		found    bool
		listings []*models.Listing
	)
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var list itemList
		if err := json.Unmarshal([]byte(s.Text()), &list); err != nil || list.ItemListElement == nil {
			return
		}
		found = true
		for _, el := range list.ItemListElement {
			item := el.Item
			if item.Name == "" || item.URL == "" {
				continue
			}
			link := absoluteURL(in.baseURL, item.URL)
			listings = append(listings, newListing(in.region, listingFields{
				id:         lastPathSegment(link),
				title:      item.Name,
				price:      int64(item.Offers.Price),
				regionName: in.region.Name3,
				img:        firstImage(item.Image),
				link:       link,
				status:     availabilityStatus(item.Offers.Availability),
			}))
		}
	})
	if !found {
		return nil, ErrShapeMismatch
	}
	return listings, nil
}

// firstImage accepts a single URL or an array of URLs.
func firstImage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 {
		return many[0]
	}
	return ""
}

// availabilityStatus maps a schema.org availability URL to an upstream
// status token.
func availabilityStatus(availability string) string {
	switch path.Base(availability) {
	case "SoldOut":
		return "COMPLETED"
	case "LimitedAvailability", "PreOrder":
		return "RESERVED"
	case "":
		return ""
	}
	return "ONGOING"
}

// --- shape C: raw markup -----------------------------------------------------

const (
	cardSelector   = `a[data-gtm="search_article"], a[href*="/buy-sell/"]`
	titleSelector  = `[data-testid="article-title"], .article-title, [class*="title"], h2, h3`
	priceSelector  = `[data-testid="article-price"], .article-price, [class*="price"]`
	regionSelector = `[data-testid="article-region"], .article-region-name, [class*="region"]`
	statusSelector = `[data-testid="article-status"], .article-status, [class*="status"]`
)

func parseMarkup(in parseInput) ([]*models.Listing, error) {
	if looksLikeJSON(in.body) {
		return nil, ErrShapeMismatch
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(in.body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShapeMismatch, err)
	}

	listings := make([]*models.Listing, 0)
	doc.Find(cardSelector).Each(func(_ int, card *goquery.Selection) {
		href, ok := card.Attr("href")
		if !ok || !isArticleHref(href) {
			return
		}
		title := firstText(card, titleSelector)
		if title == "" {
			return
		}
		link := absoluteURL(in.baseURL, href)

		regionName := firstText(card, regionSelector)
		if regionName == "" {
			regionName = in.region.Name3
		}

		img := ""
		if sel := card.Find("img").First(); sel.Length() > 0 {
			img = sel.AttrOr("src", sel.AttrOr("data-src", ""))
		}

		listings = append(listings, newListing(in.region, listingFields{
			id:         lastPathSegment(link),
			title:      title,
			price:      parsePriceText(firstText(card, priceSelector)),
			regionName: regionName,
			img:        img,
			link:       link,
			status:     firstText(card, statusSelector),
		}))
	})
	return listings, nil
}

// isArticleHref rejects the search page itself and other non-article links.
func isArticleHref(href string) bool {
	u, err := url.Parse(href)
	if err != nil {
		return false
	}
	p := strings.TrimSuffix(u.Path, "/")
	return !strings.HasSuffix(p, "/buy-sell") && lastPathSegment(p) != ""
}

func firstText(s *goquery.Selection, selector string) string {
	var out string
	s.Find(selector).EachWithBreak(func(_ int, el *goquery.Selection) bool {
		out = strings.Join(strings.Fields(el.Text()), " ")
		return out == ""
	})
	return out
}

// --- shared ------------------------------------------------------------------

type listingFields struct {
	id, title, regionName, img, link, timeAgo, content, status string
	price                                                      int64
	createdAt, updatedAt                                       *time.Time
}

func newListing(region models.Region, f listingFields) *models.Listing {
	r := region
	return &models.Listing{
		ID:             f.id,
		Title:          strings.TrimSpace(f.title),
		Price:          FormatPrice(f.price),
		PriceRaw:       max(f.price, 0),
		RegionName:     f.regionName,
		Img:            f.img,
		Link:           f.link,
		OriginalRegion: &r,
		TimeAgo:        f.timeAgo,
		Content:        f.content,
		CreatedAt:      f.createdAt,
		UpdatedAt:      f.updatedAt,
		Status:         f.status,
	}
}

func absoluteURL(base, ref string) string {
	u, err := url.Parse(ref)
	if err != nil || u.IsAbs() {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	return b.ResolveReference(u).String()
}

func lastPathSegment(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	p := strings.TrimSuffix(u.Path, "/")
	if p == "" {
		return ""
	}
	return path.Base(p)
}

package pubmed

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
)

// EFetch XML structures. Title and abstract fields use innerxml because
// PubMed embeds markup tags (<i>, <sub>, <sup>) inside them; cleanXMLText
// strips the tags afterwards.

type pubmedArticleSet struct {
	XMLName  xml.Name     `xml:"PubmedArticleSet"`
	Articles []xmlPMEntry `xml:"PubmedArticle"`
}

type xmlPMEntry struct {
	Citation   xmlCitation   `xml:"MedlineCitation"`
	PubmedData xmlPubmedData `xml:"PubmedData"`
}

type xmlCitation struct {
	PMID    string     `xml:"PMID"`
	Article xmlArticle `xml:"Article"`
}

// xmlInner captures innerxml so text inside nested markup tags survives.
type xmlInner struct {
	Inner string `xml:",innerxml"`
}

type xmlArticle struct {
	Journal      xmlJournal  `xml:"Journal"`
	ArticleTitle xmlInner    `xml:"ArticleTitle"`
	Abstract     xmlAbstract `xml:"Abstract"`
	AuthorList   struct {
		Authors []xmlAuthor `xml:"Author"`
	} `xml:"AuthorList"`
	Language            []string `xml:"Language"`
	PublicationTypeList struct {
		Types []string `xml:"PublicationType"`
	} `xml:"PublicationTypeList"`
	Pagination struct {
		MedlinePgn string `xml:"MedlinePgn"`
	} `xml:"Pagination"`
}

type xmlJournal struct {
	Title           string `xml:"Title"`
	ISOAbbreviation string `xml:"ISOAbbreviation"`
	JournalIssue    struct {
		Volume  string     `xml:"Volume"`
		Issue   string     `xml:"Issue"`
		PubDate xmlPubDate `xml:"PubDate"`
	} `xml:"JournalIssue"`
}

type xmlPubDate struct {
	Year        string `xml:"Year"`
	Month       string `xml:"Month"`
	MedlineDate string `xml:"MedlineDate"` // e.g. "2023 Nov-Dec" when Year is absent
}

type xmlAbstract struct {
	Texts []xmlAbstractText `xml:"AbstractText"`
}

type xmlAbstractText struct {
	Label string `xml:"Label,attr"`
	Text  string `xml:",innerxml"`
}

type xmlAuthor struct {
	ValidYN        string `xml:"ValidYN,attr"`
	LastName       string `xml:"LastName"`
	ForeName       string `xml:"ForeName"`
	Initials       string `xml:"Initials"`
	CollectiveName string `xml:"CollectiveName"`
}

type xmlPubmedData struct {
	ArticleIDList struct {
		IDs []struct {
			IDType string `xml:"IdType,attr"`
			Value  string `xml:",chardata"`
		} `xml:"ArticleId"`
	} `xml:"ArticleIdList"`
}

// Fetch retrieves full records for the given PMIDs via EFetch.
func (c *Client) Fetch(ctx context.Context, pmids []string) ([]Article, error) {
	if len(pmids) == 0 {
		return nil, fmt.Errorf("at least one PMID is required")
	}

	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("id", strings.Join(pmids, ","))
	params.Set("rettype", "xml")
	params.Set("retmode", "xml")

	body, err := c.doGet(ctx, "efetch.fcgi", params)
	if err != nil {
		return nil, fmt.Errorf("efetch: %w", err)
	}
	return parseArticles(body)
}

func parseArticles(data []byte) ([]Article, error) {
	var set pubmedArticleSet
	if err := xml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parse efetch response: %w", err)
	}

	articles := make([]Article, 0, len(set.Articles))
	for _, e := range set.Articles {
		articles = append(articles, convertArticle(e))
	}
	return articles, nil
}

func convertArticle(e xmlPMEntry) Article {
	xa := e.Citation.Article

	a := Article{
		PMID:             e.Citation.PMID,
		Title:            cleanXMLText(xa.ArticleTitle.Inner),
		Journal:          xa.Journal.Title,
		JournalAbbrev:    xa.Journal.ISOAbbreviation,
		Volume:           xa.Journal.JournalIssue.Volume,
		Issue:            xa.Journal.JournalIssue.Issue,
		Pages:            xa.Pagination.MedlinePgn,
		PublicationTypes: xa.PublicationTypeList.Types,
	}
	a.Year, a.Month = pubDate(xa.Journal.JournalIssue.PubDate)

	if len(xa.Language) > 0 {
		a.Language = xa.Language[0]
	}

	for _, t := range xa.Abstract.Texts {
		a.AbstractSections = append(a.AbstractSections, AbstractSection{
			Label: t.Label,
			Text:  cleanXMLText(t.Text),
		})
	}
	if len(a.AbstractSections) > 0 {
		parts := make([]string, 0, len(a.AbstractSections))
		for _, s := range a.AbstractSections {
			if s.Label != "" {
				parts = append(parts, s.Label+": "+s.Text)
			} else {
				parts = append(parts, s.Text)
			}
		}
		a.Abstract = strings.Join(parts, "\n\n")
	}

	for _, au := range xa.AuthorList.Authors {
		if au.ValidYN == "N" {
			continue
		}
		a.Authors = append(a.Authors, Author{
			LastName:       au.LastName,
			ForeName:       au.ForeName,
			Initials:       au.Initials,
			CollectiveName: au.CollectiveName,
		})
	}

	for _, id := range e.PubmedData.ArticleIDList.IDs {
		switch id.IDType {
		case "doi":
			a.DOI = strings.TrimSpace(id.Value)
		case "pmc":
			a.PMCID = strings.TrimSpace(id.Value)
		}
	}
	return a
}

var (
	xmlTagRe  = regexp.MustCompile(`<[^>]+>`)
	yearRe    = regexp.MustCompile(`\b(1[89]\d{2}|20\d{2})\b`)
	spaceRuns = regexp.MustCompile(`\s+`)
)

// cleanXMLText strips embedded markup and entities from innerxml content.
func cleanXMLText(s string) string {
	s = xmlTagRe.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	return strings.TrimSpace(spaceRuns.ReplaceAllString(s, " "))
}

// pubDate resolves Year/Month, falling back to the free-text MedlineDate
// ("2023 Nov-Dec") used for seasonal and ranged issues.
func pubDate(d xmlPubDate) (year, month string) {
	if d.Year != "" {
		return d.Year, d.Month
	}
	if m := yearRe.FindString(d.MedlineDate); m != "" {
		return m, ""
	}
	return "", ""
}

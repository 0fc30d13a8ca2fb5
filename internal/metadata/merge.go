package metadata

import "github.com/citepipe/citepipe/internal/citation"

// merge folds src into dst, first-non-empty-wins per field. Provenance from
// src is kept only for fields it actually supplies.
func merge(dst, src citation.ExtractedMetadata) citation.ExtractedMetadata {
	if dst.Title == "" && src.Title != "" {
		dst.Title = src.Title
		dst.SetSource("title", src.Sources["title"])
	}
	if len(dst.Creators) == 0 && len(src.Creators) > 0 {
		dst.Creators = src.Creators
		dst.SetSource("creators", src.Sources["creators"])
	}
	if dst.Date == "" && src.Date != "" {
		dst.Date = src.Date
		dst.SetSource("date", src.Sources["date"])
	}
	if dst.ItemType == "" && src.ItemType != "" {
		dst.ItemType = src.ItemType
		dst.SetSource("itemType", src.Sources["itemType"])
	}
	if dst.AbstractNote == "" && src.AbstractNote != "" {
		dst.AbstractNote = src.AbstractNote
		dst.SetSource("abstractNote", src.Sources["abstractNote"])
	}
	if dst.PublicationTitle == "" && src.PublicationTitle != "" {
		dst.PublicationTitle = src.PublicationTitle
		dst.SetSource("publicationTitle", src.Sources["publicationTitle"])
	}
	return dst
}

// MergeMissing fills only the fields of dst that are still empty from src,
// attributing them to the given strategy. Used for the AI fallback: the
// structured results always win.
func MergeMissing(dst, src citation.ExtractedMetadata, strategy string) citation.ExtractedMetadata {
	if dst.Title == "" && src.Title != "" {
		dst.Title = src.Title
		dst.SetSource("title", strategy)
	}
	if len(dst.Creators) == 0 && len(src.Creators) > 0 {
		dst.Creators = src.Creators
		dst.SetSource("creators", strategy)
	}
	if dst.Date == "" && src.Date != "" {
		dst.Date = NormalizeDate(src.Date)
		dst.SetSource("date", strategy)
	}
	if dst.ItemType == "" && src.ItemType != "" {
		dst.ItemType = src.ItemType
		dst.SetSource("itemType", strategy)
	}
	if dst.AbstractNote == "" && src.AbstractNote != "" {
		dst.AbstractNote = src.AbstractNote
		dst.SetSource("abstractNote", strategy)
	}
	if dst.PublicationTitle == "" && src.PublicationTitle != "" {
		dst.PublicationTitle = src.PublicationTitle
		dst.SetSource("publicationTitle", strategy)
	}
	return dst
}

// UsedStrategy reports whether any populated field came from the strategy.
func UsedStrategy(md citation.ExtractedMetadata, strategy string) bool {
	for _, s := range md.Sources {
		if s == strategy {
			return true
		}
	}
	return false
}

// complete is the completeness predicate: title, creators, date, item type.
func complete(md citation.ExtractedMetadata) bool {
	return md.Title != "" && len(md.Creators) > 0 && md.Date != "" && md.ItemType != ""
}

// Complete reports whether the critical fields are all present.
func Complete(md citation.ExtractedMetadata) bool { return complete(md) }

// MissingCriticalFields lists which of the critical fields are absent.
func MissingCriticalFields(md citation.ExtractedMetadata) []string {
	var missing []string
	if md.Title == "" {
		missing = append(missing, "title")
	}
	if len(md.Creators) == 0 {
		missing = append(missing, "creators")
	}
	if md.Date == "" {
		missing = append(missing, "date")
	}
	if md.ItemType == "" {
		missing = append(missing, "itemType")
	}
	return missing
}

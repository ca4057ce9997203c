package affect

import (
	"sort"
	"strings"

	"github.com/rezkysantika/Expression-Measurement/internal/domain"
)

// Aggregate max-pools emotion scores across every record in the window: per
// canonical category it keeps the single highest normalized confidence seen,
// i.e. the strongest evidence for that category anywhere in the window, not
// an average. Output is sorted by confidence descending with ties broken by
// first-seen order, truncated to topN when topN > 0.
func Aggregate(records []domain.PredictionRecord, topN int) []domain.EmotionItem {
	type pooled struct {
		item  domain.EmotionItem
		order int
	}
	byIdentity := make(map[string]*pooled)
	var identities []string

	for _, rec := range records {
		for _, e := range rec.Emotions {
			key, known, label, color := Resolve(e.Name)
			identity := key
			if !known {
				identity = strings.ToLower(e.Name)
			}
			conf := Normalize(e.Score)

			if existing, ok := byIdentity[identity]; ok {
				if conf > existing.item.Confidence {
					existing.item.Confidence = conf
				}
				continue
			}
			byIdentity[identity] = &pooled{
				item:  domain.EmotionItem{Name: label, Confidence: conf, Color: color},
				order: len(identities),
			}
			identities = append(identities, identity)
		}
	}

	items := make([]domain.EmotionItem, 0, len(identities))
	for _, id := range identities {
		items = append(items, byIdentity[id].item)
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Confidence > items[j].Confidence
	})

	if topN > 0 && len(items) > topN {
		items = items[:topN]
	}
	return items
}

package affect

import (
	"bytes"
	"encoding/json"

	"github.com/rezkysantika/Expression-Measurement/internal/domain"
)

// Extraction holds the three flattened record lists produced from one
// predictions payload.
type Extraction struct {
	LanguageTokens    []domain.PredictionRecord
	ProsodyUtterances []domain.PredictionRecord
	BurstEvents       []domain.PredictionRecord
}

// Empty reports whether no model family produced any records.
func (e Extraction) Empty() bool {
	return len(e.LanguageTokens) == 0 && len(e.ProsodyUtterances) == 0 && len(e.BurstEvents) == 0
}

const (
	familyLanguage = "language"
	familyProsody  = "prosody"
	familyBurst    = "burst"
)

type wireTime struct {
	Begin *float64 `json:"begin"`
	End   *float64 `json:"end"`
}

type wirePrediction struct {
	Text     string                `json:"text"`
	Time     *wireTime             `json:"time"`
	Emotions []domain.EmotionScore `json:"emotions"`
}

// Extract walks the nested payload shape (result items -> results.predictions
// -> models.<family>.grouped_predictions -> predictions) and flattens each
// model family into a uniform record list. The decode is tolerant: a missing
// or wrong-shaped field at any level yields nothing for that branch, never an
// error, so a malformed payload degrades to an empty extraction.
func Extract(payload []byte) Extraction {
	var out Extraction
	for _, item := range topLevelItems(payload) {
		var ri struct {
			Results json.RawMessage `json:"results"`
		}
		if json.Unmarshal(item, &ri) != nil || len(ri.Results) == 0 {
			continue
		}
		var res struct {
			Predictions []json.RawMessage `json:"predictions"`
		}
		if json.Unmarshal(ri.Results, &res) != nil {
			continue
		}
		for _, pred := range res.Predictions {
			var fp struct {
				Models map[string]json.RawMessage `json:"models"`
			}
			if json.Unmarshal(pred, &fp) != nil {
				continue
			}
			out.LanguageTokens = append(out.LanguageTokens, flattenFamily(fp.Models[familyLanguage], familyLanguage)...)
			out.ProsodyUtterances = append(out.ProsodyUtterances, flattenFamily(fp.Models[familyProsody], familyProsody)...)
			out.BurstEvents = append(out.BurstEvents, flattenFamily(fp.Models[familyBurst], familyBurst)...)
		}
	}
	return out
}

// topLevelItems normalizes the payload to a list of result items: the vendor
// returns either a single result object or an array of them.
func topLevelItems(payload []byte) []json.RawMessage {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil
	}
	if trimmed[0] == '[' {
		var items []json.RawMessage
		if json.Unmarshal(trimmed, &items) != nil {
			return nil
		}
		return items
	}
	if trimmed[0] == '{' {
		return []json.RawMessage{trimmed}
	}
	return nil
}

func flattenFamily(model json.RawMessage, family string) []domain.PredictionRecord {
	if len(model) == 0 {
		return nil
	}
	var m struct {
		GroupedPredictions []struct {
			Predictions []wirePrediction `json:"predictions"`
		} `json:"grouped_predictions"`
	}
	if json.Unmarshal(model, &m) != nil {
		return nil
	}

	var records []domain.PredictionRecord
	for _, group := range m.GroupedPredictions {
		for _, p := range group.Predictions {
			rec, ok := toRecord(p, family)
			if ok {
				records = append(records, rec)
			}
		}
	}
	return records
}

// toRecord applies the per-family retention rules: language and prosody need
// non-empty text and numeric begin/end; language additionally drops records
// with begin > end rather than fixing them up; burst events need timestamps
// only.
func toRecord(p wirePrediction, family string) (domain.PredictionRecord, bool) {
	if p.Time == nil || p.Time.Begin == nil || p.Time.End == nil {
		return domain.PredictionRecord{}, false
	}
	begin, end := *p.Time.Begin, *p.Time.End

	switch family {
	case familyLanguage:
		if p.Text == "" || begin > end {
			return domain.PredictionRecord{}, false
		}
	case familyProsody:
		if p.Text == "" {
			return domain.PredictionRecord{}, false
		}
	}

	return domain.PredictionRecord{
		Text:     p.Text,
		Begin:    begin,
		End:      end,
		Emotions: p.Emotions,
	}, true
}

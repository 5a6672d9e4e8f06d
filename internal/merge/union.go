package merge

import (
	"encoding/json"
	"fmt"

	"github.com/gyeh/visitload/internal/model"
)

// UnionStrings returns cur followed by every value of inc not already
// present. Duplicates inside either list collapse too.
func UnionStrings(cur, inc []string) []string {
	out := make([]string, 0, len(cur)+len(inc))
	seen := make(map[string]bool, len(cur)+len(inc))
	for _, list := range [][]string{cur, inc} {
		for _, v := range list {
			if seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// UnionAnswers set-unions two answer lists. Answers compare by their JSON
// form, so the string "1" and the number 1 stay distinct.
func UnionAnswers(cur, inc []any) []any {
	out := make([]any, 0, len(cur)+len(inc))
	seen := make(map[string]bool, len(cur)+len(inc))
	for _, list := range [][]any{cur, inc} {
		for _, v := range list {
			k := answerKey(v)
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, v)
		}
	}
	return out
}

// UnionQuestionnaires merges inc into cur key by key. Neither input is
// modified.
func UnionQuestionnaires(cur, inc model.Questionnaire) model.Questionnaire {
	out := make(model.Questionnaire, len(cur)+len(inc))
	for k, v := range cur {
		out[k] = UnionAnswers(v, nil)
	}
	for k, v := range inc {
		out[k] = UnionAnswers(out[k], v)
	}
	return out
}

func answerKey(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%T:%v", v, v)
	}
	return string(b)
}

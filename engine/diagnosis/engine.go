// Package diagnosis implements the rule-based breakdown questionnaire: a
// static question graph walked one answer at a time, and a static result
// table resolved from the collected answers.
//
// The engine is stateless; callers record answers (one per question id) and
// pass the full set to Resolve once Next signals a terminal.
package diagnosis

// Answers maps question ids to the selected option id for one session.
type Answers map[string]string

// Next returns the question following the given selection. terminal is true
// when the option has no mapping, or maps to an id that is not a known
// question; the caller must then resolve a result from its answers.
func Next(currentQuestionID, selectedOptionID string) (nextID string, terminal bool) {
	q, ok := questions[currentQuestionID]
	if !ok {
		return "", true
	}
	next, ok := q.Next[selectedOptionID]
	if !ok {
		return "", true
	}
	if _, known := questions[next]; !known {
		return "", true
	}
	return next, false
}

// Resolve maps a completed answer set to a diagnostic result.
//
// The lookup key is "{symptome}_{detail}" when the "{symptome}_detail"
// question was answered, otherwise "result_{symptome}". Unresolvable input
// (missing answers, unknown combinations) falls back to the generic
// unidentified-problem entry; Resolve never fails.
func Resolve(answers Answers) Result {
	symptom := answers["symptome"]
	detail := answers[symptom+"_detail"]

	key := resultKey("result_" + symptom)
	if detail != "" {
		key = resultKey(symptom + "_" + detail)
	}

	if r, ok := results[key]; ok {
		return r
	}
	return results[keyAutre]
}

// FallbackResult returns the generic unidentified-problem result.
func FallbackResult() Result { return results[keyAutre] }

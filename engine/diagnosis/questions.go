package diagnosis

// Option is one selectable answer to a question.
type Option struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// Question is a node of the diagnostic graph. Next maps a selected option id
// to the next question id; an option absent from Next, or mapped to an id
// that is not a known question, ends the traversal.
type Question struct {
	ID      string            `json:"id"`
	Prompt  string            `json:"prompt"`
	Options []Option          `json:"options"`
	Next    map[string]string `json:"next,omitempty"`
}

// RootQuestionID is where every diagnostic session starts.
const RootQuestionID = "mobilite"

// questions is the static diagnostic graph, fixed at process start.
var questions = map[string]Question{
	"mobilite": {
		ID:     "mobilite",
		Prompt: "Votre véhicule peut-il encore rouler ?",
		Options: []Option{
			{ID: "oui", Label: "Oui, il roule"},
			{ID: "non", Label: "Non, immobilisé"},
			{ID: "inconnu", Label: "Je ne sais pas"},
		},
		Next: map[string]string{"oui": "symptome", "non": "symptome", "inconnu": "symptome"},
	},
	"symptome": {
		ID:     "symptome",
		Prompt: "Que se passe-t-il ?",
		Options: []Option{
			{ID: "batterie", Label: "Batterie / Démarrage", Description: "Ne démarre pas"},
			{ID: "surchauffe", Label: "Surchauffe moteur", Description: "Voyant rouge, fumée"},
			{ID: "pneu", Label: "Pneu crevé", Description: "Pneu à plat"},
			{ID: "bruit", Label: "Bruit anormal", Description: "Claquement, grincement"},
			{ID: "carburant", Label: "Panne de carburant", Description: "Réservoir vide"},
			{ID: "voyant", Label: "Voyant allumé", Description: "Témoin au tableau"},
			{ID: "autre", Label: "Autre problème", Description: "Autre"},
		},
		Next: map[string]string{
			"batterie":   "batterie_detail",
			"surchauffe": "result_surchauffe",
			"pneu":       "pneu_detail",
			"bruit":      "result_bruit",
			"carburant":  "result_carburant",
			"voyant":     "voyant_detail",
			"autre":      "result_autre",
		},
	},
	"batterie_detail": {
		ID:     "batterie_detail",
		Prompt: "Que se passe-t-il quand vous tournez la clé ?",
		Options: []Option{
			{ID: "rien", Label: "Rien du tout"},
			{ID: "cliquetis", Label: "Cliquetis"},
			{ID: "tourne", Label: "Moteur tourne"},
			{ID: "cale", Label: "Démarre puis cale"},
		},
	},
	"pneu_detail": {
		ID:     "pneu_detail",
		Prompt: "Avez-vous une roue de secours ?",
		Options: []Option{
			{ID: "oui_sait", Label: "Oui et je sais changer"},
			{ID: "oui_sait_pas", Label: "Oui mais je ne sais pas"},
			{ID: "non", Label: "Non"},
		},
	},
	"voyant_detail": {
		ID:     "voyant_detail",
		Prompt: "De quelle couleur est le voyant ?",
		Options: []Option{
			{ID: "rouge", Label: "Rouge"},
			{ID: "orange", Label: "Orange"},
			{ID: "autre", Label: "Autre"},
		},
	},
}

// QuestionByID looks up a question in the static graph.
func QuestionByID(id string) (Question, bool) {
	q, ok := questions[id]
	return q, ok
}

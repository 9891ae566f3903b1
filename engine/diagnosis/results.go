package diagnosis

import "github.com/sosmeca/sosmeca-server/engine/domain"

// Tutorial is an optional step-by-step self-help guide attached to a result.
type Tutorial struct {
	Title   string   `json:"title"`
	Steps   []string `json:"steps"`
	Warning string   `json:"warning,omitempty"`
}

// Result is the outcome of a completed diagnostic traversal. Immutable once
// computed; severity and NeedsMechanic are static attributes of the table
// entry, never derived at runtime.
type Result struct {
	Symptom       string          `json:"symptom"`
	SubCategory   string          `json:"sub_category"`
	Severity      domain.Severity `json:"severity"`
	Advice        string          `json:"advice,omitempty"`
	Tutorial      *Tutorial       `json:"tutorial,omitempty"`
	NeedsMechanic bool            `json:"needs_mechanic"`
}

// Snapshot returns the fields persisted on an assistance request.
func (r Result) Snapshot() domain.DiagnosticSnapshot {
	return domain.DiagnosticSnapshot{
		Symptom:     r.Symptom,
		SubCategory: r.SubCategory,
		Severity:    r.Severity,
	}
}

// resultKey identifies one entry of the static result table. Keys are either
// "{symptome}_{detail}" when a detail question was answered, or
// "result_{symptome}" for symptoms without a detail question.
type resultKey string

const (
	keyBatterieRien      resultKey = "batterie_rien"
	keyBatterieCliquetis resultKey = "batterie_cliquetis"
	keyBatterieTourne    resultKey = "batterie_tourne"
	keyBatterieCale      resultKey = "batterie_cale"
	keyPneuOuiSait       resultKey = "pneu_oui_sait"
	keyPneuOuiSaitPas    resultKey = "pneu_oui_sait_pas"
	keyPneuNon           resultKey = "pneu_non"
	keySurchauffe        resultKey = "result_surchauffe"
	keyCarburant         resultKey = "result_carburant"
	keyBruit             resultKey = "result_bruit"
	keyVoyantRouge       resultKey = "voyant_rouge"
	keyVoyantOrange      resultKey = "voyant_orange"
	keyVoyantAutre       resultKey = "voyant_autre"
	keyAutre             resultKey = "result_autre"
)

// results is the static result table. keyAutre is the designated fallback for
// any answer set that matches no other entry.
var results = map[resultKey]Result{
	keyBatterieRien: {
		Symptom:     "Batterie",
		SubCategory: "Batterie déchargée",
		Severity:    domain.SeverityModerate,
		Advice:      "Batterie probablement déchargée.",
		Tutorial: &Tutorial{
			Title: "Démarrage avec câbles",
			Steps: []string{
				"Trouvez un véhicule avec batterie chargée",
				"Connectez câble rouge (+) aux deux batteries",
				"Connectez câble noir (-) aux deux batteries",
				"Démarrez l'autre véhicule",
				"Essayez de démarrer votre véhicule",
			},
			Warning: "Ne touchez jamais les pinces entre elles",
		},
		NeedsMechanic: false,
	},
	keyBatterieCliquetis: {
		Symptom:       "Batterie",
		SubCategory:   "Batterie faible",
		Severity:      domain.SeverityMinor,
		Advice:        "Batterie faible, démarrage avec câbles possible.",
		NeedsMechanic: false,
	},
	keyBatterieTourne: {
		Symptom:       "Démarrage",
		SubCategory:   "Problème alimentation",
		Severity:      domain.SeveritySerious,
		Advice:        "Problème d'alimentation ou d'allumage.",
		NeedsMechanic: true,
	},
	keyBatterieCale: {
		Symptom:       "Démarrage",
		SubCategory:   "Problème capteur",
		Severity:      domain.SeveritySerious,
		Advice:        "Possible problème de capteur.",
		NeedsMechanic: true,
	},
	keyPneuOuiSait: {
		Symptom:     "Pneu",
		SubCategory: "Pneu crevé",
		Severity:    domain.SeverityMinor,
		Advice:      "Vous pouvez changer la roue.",
		Tutorial: &Tutorial{
			Title: "Changement de roue",
			Steps: []string{
				"Garez-vous sur terrain plat",
				"Serrez le frein à main",
				"Desserrez les boulons",
				"Placez le cric",
				"Levez le véhicule",
				"Retirez et remplacez la roue",
				"Serrez les boulons en croix",
			},
			Warning: "Max 80 km/h avec roue de secours",
		},
		NeedsMechanic: false,
	},
	keyPneuOuiSaitPas: {
		Symptom:       "Pneu",
		SubCategory:   "Besoin d'aide",
		Severity:      domain.SeverityMinor,
		Advice:        "Un mécanicien peut vous aider rapidement.",
		NeedsMechanic: true,
	},
	keyPneuNon: {
		Symptom:       "Pneu",
		SubCategory:   "Pas de roue de secours",
		Severity:      domain.SeveritySerious,
		Advice:        "Vous avez besoin d'un dépanneur.",
		NeedsMechanic: true,
	},
	keySurchauffe: {
		Symptom:       "Surchauffe",
		SubCategory:   "Moteur en surchauffe",
		Severity:      domain.SeveritySerious,
		Advice:        "STOP ! Ne roulez plus. Attendez que le moteur refroidisse.",
		NeedsMechanic: true,
	},
	keyCarburant: {
		Symptom:       "Carburant",
		SubCategory:   "Panne sèche",
		Severity:      domain.SeverityMinor,
		Advice:        "Panne de carburant.",
		NeedsMechanic: false,
	},
	keyBruit: {
		Symptom:       "Bruit",
		SubCategory:   "Bruit anormal",
		Severity:      domain.SeverityModerate,
		Advice:        "À faire vérifier par un mécanicien.",
		NeedsMechanic: true,
	},
	keyVoyantRouge: {
		Symptom:       "Voyant",
		SubCategory:   "Voyant rouge",
		Severity:      domain.SeveritySerious,
		Advice:        "Arrêtez-vous dès que possible.",
		NeedsMechanic: true,
	},
	keyVoyantOrange: {
		Symptom:       "Voyant",
		SubCategory:   "Voyant orange",
		Severity:      domain.SeverityModerate,
		Advice:        "À vérifier, vous pouvez continuer prudemment.",
		NeedsMechanic: false,
	},
	keyVoyantAutre: {
		Symptom:       "Voyant",
		SubCategory:   "Autre voyant",
		Severity:      domain.SeverityMinor,
		Advice:        "Probablement informatif.",
		NeedsMechanic: false,
	},
	keyAutre: {
		Symptom:       "Autre",
		SubCategory:   "Problème non identifié",
		Severity:      domain.SeverityModerate,
		Advice:        "Décrivez votre problème au mécanicien.",
		NeedsMechanic: true,
	},
}

package vocab

// DefaultVersion is the version of the built-in vocabulary.
const DefaultVersion = "1.2.0"

// seedEntries covers the CheXpert observation labels plus the NIH
// ChestX-ray14 labels that have no CheXpert equivalent.
var seedEntries = []Entry{
	// Cardiac
	{
		ID:            "cardiomegaly",
		Name:          "Cardiomegaly",
		Synonyms:      []string{"enlarged heart", "cardiac enlargement", "enlarged cardiac silhouette", "heart is enlarged"},
		BodyRegion:    "heart",
		PathologyType: "enlargement",
		Category:      "cardiac",
		Criticality:   CriticalityModerate,
	},
	{
		ID:            "enlarged_cardiomediastinum",
		Name:          "Enlarged Cardiomediastinum",
		Synonyms:      []string{"widened mediastinum", "mediastinal widening", "mediastinal enlargement"},
		BodyRegion:    "mediastinum",
		PathologyType: "enlargement",
		Category:      "cardiac",
		Criticality:   CriticalityHigh,
	},

	// Lung parenchyma
	{
		ID:            "lung_opacity",
		Name:          "Lung Opacity",
		Synonyms:      []string{"opacity", "opacities", "opacification", "airspace disease", "haziness"},
		BodyRegion:    "lung",
		PathologyType: "opacity",
		Category:      "lung",
		Criticality:   CriticalityModerate,
	},
	{
		ID:            "lung_lesion",
		Name:          "Lung Lesion",
		Synonyms:      []string{"lesion", "nodule", "nodules", "mass", "tumor", "pulmonary nodule"},
		BodyRegion:    "lung",
		PathologyType: "neoplasm",
		Category:      "lung",
		Criticality:   CriticalityHigh,
	},
	{
		ID:            "consolidation",
		Name:          "Consolidation",
		Synonyms:      []string{"airspace consolidation", "consolidative change"},
		BodyRegion:    "lung",
		PathologyType: "consolidation",
		Category:      "lung",
		Criticality:   CriticalityHigh,
	},
	{
		ID:            "atelectasis",
		Name:          "Atelectasis",
		Synonyms:      []string{"collapse", "volume loss", "atelectatic change"},
		BodyRegion:    "lung",
		PathologyType: "collapse",
		Category:      "lung",
		Criticality:   CriticalityModerate,
	},
	{
		ID:            "emphysema",
		Name:          "Emphysema",
		Synonyms:      []string{"hyperinflation", "hyperexpanded lungs", "bullae"},
		BodyRegion:    "lung",
		PathologyType: "chronic",
		Category:      "lung",
		Criticality:   CriticalityLow,
	},
	{
		ID:            "fibrosis",
		Name:          "Fibrosis",
		Synonyms:      []string{"interstitial fibrosis", "scarring", "reticular opacities"},
		BodyRegion:    "lung",
		PathologyType: "chronic",
		Category:      "lung",
		Criticality:   CriticalityLow,
	},

	// Infection and fluid
	{
		ID:            "pneumonia",
		Name:          "Pneumonia",
		Synonyms:      []string{"infiltrate", "infiltrates", "infiltration", "infectious process"},
		BodyRegion:    "lung",
		PathologyType: "infection",
		Category:      "infection",
		Criticality:   CriticalityHigh,
	},
	{
		ID:            "edema",
		Name:          "Edema",
		Synonyms:      []string{"pulmonary edema", "vascular congestion", "interstitial edema"},
		BodyRegion:    "lung",
		PathologyType: "fluid",
		Category:      "infection",
		Criticality:   CriticalityHigh,
	},

	// Pleura
	{
		ID:            "pneumothorax",
		Name:          "Pneumothorax",
		Synonyms:      []string{"ptx", "collapsed lung", "pleural air"},
		BodyRegion:    "pleura",
		PathologyType: "air",
		Category:      "pleural",
		Criticality:   CriticalityCritical,
	},
	{
		ID:            "pleural_effusion",
		Name:          "Pleural Effusion",
		Synonyms:      []string{"effusion", "effusions", "fluid", "pleural fluid", "blunting of the costophrenic angle"},
		BodyRegion:    "pleura",
		PathologyType: "fluid",
		Category:      "pleural",
		Criticality:   CriticalityModerate,
	},
	{
		ID:            "pleural_other",
		Name:          "Pleural Other",
		Synonyms:      []string{"pleural thickening", "pleural plaque", "pleural plaques"},
		BodyRegion:    "pleura",
		PathologyType: "thickening",
		Category:      "pleural",
		Criticality:   CriticalityLow,
	},

	// Structural
	{
		ID:            "fracture",
		Name:          "Fracture",
		Synonyms:      []string{"rib fracture", "fractured rib", "broken rib"},
		BodyRegion:    "bone",
		PathologyType: "trauma",
		Category:      "structural",
		Criticality:   CriticalityHigh,
	},
	{
		ID:            "hernia",
		Name:          "Hernia",
		Synonyms:      []string{"hiatal hernia", "hiatus hernia"},
		BodyRegion:    "diaphragm",
		PathologyType: "herniation",
		Category:      "structural",
		Criticality:   CriticalityLow,
	},
	{
		ID:            "support_devices",
		Name:          "Support Devices",
		Synonyms:      []string{"endotracheal tube", "central line", "pacemaker", "nasogastric tube", "chest tube"},
		BodyRegion:    "chest",
		PathologyType: "device",
		Category:      "structural",
		Criticality:   CriticalityLow,
	},
}

// Default returns the built-in vocabulary.
func Default() *Vocabulary {
	v, err := New(DefaultVersion, seedEntries)
	if err != nil {
		panic("vocab: invalid seed: " + err.Error())
	}
	return v
}

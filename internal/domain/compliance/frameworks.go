package compliance

// Built-in frameworks and their pillar relevance weights. Weights reflect
// how strongly a pillar evidences a control, not legal authority.

var builtinFrameworks = []Framework{
	{
		ID:   "eu_ai_act",
		Name: "EU AI Act (high-risk provisions)",
		Controls: []Control{
			{ID: "art9_risk_management", Title: "Risk management system", Pillars: []string{"robustness", "safety"}},
			{ID: "art10_data_governance", Title: "Data and data governance", Pillars: []string{"fairness", "privacy"}},
			{ID: "art13_transparency", Title: "Transparency and provision of information", Pillars: []string{"transparency"}},
			{ID: "art14_human_oversight", Title: "Human oversight", Pillars: []string{"safety", "transparency"}},
			{ID: "art15_accuracy_robustness", Title: "Accuracy, robustness and cybersecurity", Pillars: []string{"robustness", "safety"}},
		},
	},
	{
		ID:   "nist_ai_rmf",
		Name: "NIST AI Risk Management Framework",
		Controls: []Control{
			{ID: "govern", Title: "Govern: policies and accountability", Pillars: []string{"transparency", "safety"}},
			{ID: "map", Title: "Map: context and risk identification", Pillars: []string{"fairness", "robustness"}},
			{ID: "measure", Title: "Measure: risk analysis and tracking", Pillars: []string{"fairness", "robustness", "privacy"}},
			{ID: "manage", Title: "Manage: risk prioritization and response", Pillars: []string{"safety", "robustness"}},
		},
	},
	{
		ID:   "iso_42001",
		Name: "ISO/IEC 42001 AI management system",
		Controls: []Control{
			{ID: "a6_system_lifecycle", Title: "AI system life cycle", Pillars: []string{"robustness", "safety"}},
			{ID: "a7_data_management", Title: "Data for AI systems", Pillars: []string{"privacy", "fairness"}},
			{ID: "a8_third_party", Title: "Information for interested parties", Pillars: []string{"transparency"}},
		},
	},
}

var builtinRelevance = map[relevanceKey]float64{
	{"robustness", "eu_ai_act", "art9_risk_management"}:       0.8,
	{"safety", "eu_ai_act", "art9_risk_management"}:           1.0,
	{"fairness", "eu_ai_act", "art10_data_governance"}:        1.0,
	{"privacy", "eu_ai_act", "art10_data_governance"}:         0.9,
	{"transparency", "eu_ai_act", "art13_transparency"}:       1.0,
	{"safety", "eu_ai_act", "art14_human_oversight"}:          0.7,
	{"transparency", "eu_ai_act", "art14_human_oversight"}:    0.6,
	{"robustness", "eu_ai_act", "art15_accuracy_robustness"}:  1.0,
	{"safety", "eu_ai_act", "art15_accuracy_robustness"}:      0.6,
	{"transparency", "nist_ai_rmf", "govern"}:                 0.8,
	{"safety", "nist_ai_rmf", "govern"}:                       0.6,
	{"fairness", "nist_ai_rmf", "map"}:                        0.7,
	{"robustness", "nist_ai_rmf", "map"}:                      0.7,
	{"fairness", "nist_ai_rmf", "measure"}:                    0.9,
	{"robustness", "nist_ai_rmf", "measure"}:                  0.8,
	{"privacy", "nist_ai_rmf", "measure"}:                     0.7,
	{"safety", "nist_ai_rmf", "manage"}:                       0.9,
	{"robustness", "nist_ai_rmf", "manage"}:                   0.7,
	{"robustness", "iso_42001", "a6_system_lifecycle"}:        0.8,
	{"safety", "iso_42001", "a6_system_lifecycle"}:            0.8,
	{"privacy", "iso_42001", "a7_data_management"}:            1.0,
	{"fairness", "iso_42001", "a7_data_management"}:           0.8,
	{"transparency", "iso_42001", "a8_third_party"}:           1.0,
}

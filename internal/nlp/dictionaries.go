package nlp

// Term dictionaries for medical entity extraction. Compound conditions are
// multi-word terms that must be kept atomic; ordering within each list is
// longest-first so broader terms never shadow a more specific match.

// compoundConditions are multi-word clinical terms matched before any
// single-term pass. Hyphen and space are interchangeable between tokens.
var compoundConditions = []string{
	"hormone receptor-positive breast cancer",
	"chronic obstructive pulmonary disease",
	"non-small cell lung cancer",
	"triple-negative breast cancer",
	"chronic lymphocytic leukemia",
	"her2-positive breast cancer",
	"small cell lung cancer",
	"acute myeloid leukemia",
	"metastatic breast cancer",
	"congestive heart failure",
	"chronic kidney disease",
	"coronary artery disease",
	"rheumatoid arthritis",
	"multiple sclerosis",
	"multiple myeloma",
	"type 1 diabetes",
	"type 2 diabetes",
	"atrial fibrillation",
	"pulmonary hypertension",
	"ulcerative colitis",
	"alzheimer disease",
	"parkinson disease",
	"colorectal cancer",
	"pancreatic cancer",
	"prostate cancer",
	"ovarian cancer",
	"bladder cancer",
	"gastric cancer",
	"thyroid cancer",
	"cervical cancer",
	"breast cancer",
	"kidney cancer",
	"liver cancer",
	"lung cancer",
	"skin cancer",
}

// conditionTerms are single-word conditions
var conditionTerms = []string{
	"cancer", "carcinoma", "tumor", "melanoma", "leukemia", "lymphoma",
	"sarcoma", "glioblastoma", "diabetes", "hypertension", "asthma", "copd",
	"depression", "anxiety", "schizophrenia", "arthritis", "osteoporosis",
	"stroke", "obesity", "epilepsy", "migraine", "anemia", "sepsis",
	"pneumonia", "cirrhosis", "hepatitis", "hiv", "dementia", "psoriasis",
	"eczema", "fibromyalgia", "lupus", "glaucoma", "hypothyroidism",
	"hyperthyroidism", "osteoarthritis", "endometriosis",
}

// medicationTerms are drug names and drug classes recognized in narratives
var medicationTerms = []string{
	"pembrolizumab", "nivolumab", "atezolizumab", "trastuzumab", "rituximab",
	"bevacizumab", "olaparib", "palbociclib", "tamoxifen", "letrozole",
	"anastrozole", "paclitaxel", "docetaxel", "carboplatin", "cisplatin",
	"doxorubicin", "cyclophosphamide", "capecitabine", "gemcitabine",
	"methotrexate", "metformin", "insulin", "lisinopril", "losartan",
	"amlodipine", "atorvastatin", "rosuvastatin", "aspirin", "warfarin",
	"apixaban", "clopidogrel", "ibuprofen", "acetaminophen", "prednisone",
	"levothyroxine", "omeprazole", "albuterol", "sertraline", "fluoxetine",
}

// procedureTerms are interventions and procedures
var procedureTerms = []string{
	"radiation therapy", "stem cell transplant", "bone marrow transplant",
	"mastectomy", "lumpectomy", "chemotherapy", "immunotherapy",
	"radiotherapy", "biopsy", "colonoscopy", "endoscopy", "angioplasty",
	"dialysis", "transplant", "resection", "ablation", "surgery",
}

// labTerms are laboratory measurements
var labTerms = []string{
	"hemoglobin", "hba1c", "creatinine", "glucose", "cholesterol",
	"triglycerides", "platelet", "neutrophil", "bilirubin", "albumin",
	"egfr", "psa", "ldl", "hdl", "wbc", "alt", "ast", "inr",
}

// abbreviations expanded during preprocessing. Slash forms are handled
// separately because "/" breaks word boundaries.
var abbreviations = map[string]string{
	"hx":  "history",
	"dx":  "diagnosis",
	"tx":  "treatment",
	"pt":  "patient",
	"yr":  "years",
	"yrs": "years",
	"mo":  "months",
	"mos": "months",
}

// VocabularyTerms returns every known medical term across categories, used
// by the search engine for keyword extraction.
func VocabularyTerms() []string {
	size := len(compoundConditions) + len(conditionTerms) + len(medicationTerms) +
		len(procedureTerms) + len(labTerms)
	terms := make([]string, 0, size)
	terms = append(terms, compoundConditions...)
	terms = append(terms, conditionTerms...)
	terms = append(terms, medicationTerms...)
	terms = append(terms, procedureTerms...)
	terms = append(terms, labTerms...)
	return terms
}

// ConditionVocabulary returns compound and single-term condition entries
func ConditionVocabulary() []string {
	terms := make([]string, 0, len(compoundConditions)+len(conditionTerms))
	terms = append(terms, compoundConditions...)
	terms = append(terms, conditionTerms...)
	return terms
}

// MedicationVocabulary returns known drug names
func MedicationVocabulary() []string { return medicationTerms }

// ProcedureVocabulary returns known procedure terms
func ProcedureVocabulary() []string { return procedureTerms }

// LabVocabulary returns known laboratory measurement terms
func LabVocabulary() []string { return labTerms }

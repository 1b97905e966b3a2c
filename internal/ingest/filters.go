package ingest

import "sort"

// Coarse connector tags.
const (
	TagDigital        = "ai_digital"
	TagBudget         = "budget"
	TagAntiCorruption = "anti_corruption"
	TagCivic          = "civic_participation"
	TagJustice        = "justice"
	TagGovernance     = "governance"
)

var tagHints = []struct {
	tag   string
	hints []string
}{
	{TagDigital, []string{"digital", "data", "ict", "e-government", "open data", "numérique", "données", "govtech"}},
	{TagBudget, []string{"budget", "public finance", "pfm", "audit", "finances publiques"}},
	{TagAntiCorruption, []string{"transparen", "accountab", "anti-corruption", "integrity", "intégrité", "procurement"}},
	{TagCivic, []string{"civic", "participation", "citizen", "société civile", "civil society"}},
	{TagJustice, []string{"justice", "rule of law", "état de droit"}},
}

// ClassifyTags assigns coarse category tags from free text. Text matching no
// hint is tagged governance.
func ClassifyTags(text string) []string {
	var tags []string
	for _, h := range tagHints {
		if containsAny(text, h.hints) {
			tags = append(tags, h.tag)
		}
	}
	if len(tags) == 0 {
		return []string{TagGovernance}
	}
	sort.Strings(tags)
	return tags
}

// ogpKeywords flag open-government relevant items (EN, FR, ES, AR).
var ogpKeywords = []string{
	"open government", "transparency", "accountability", "participation",
	"access to information", "right to information", "budget", "audit", "pfm",
	"citizen", "civic", "data", "digital", "govtech", "ict", "open data",
	"procurement", "e-procurement", "anti-corruption", "integrity", "tax", "revenue",
	"governance", "justice", "rule of law", "public finance",
	"gouvernance", "gouvernement ouvert", "transparence", "redevabilité",
	"accès à l'information", "droit d'accès", "citoyen",
	"données", "numérique", "données ouvertes", "commande publique", "anticorruption",
	"appel à projets", "appel a projets", "subvention", "financement",
	"gobierno abierto", "transparencia", "rendición de cuentas", "participación",
	"acceso a la información", "presupuesto", "datos", "datos abiertos",
	"حكومة منفتحة", "حكومة مفتوحة", "شفافية", "مساءلة", "مشاركة", "حق الحصول على المعلومات",
	"ميزانية", "بيانات", "رقمي", "مفتوحة",
}

// excludeKeywords mark auctions and asset disposals, never worth a digest line.
var excludeKeywords = []string{
	"auction", "sealed-bid", "sale of vehicles", "vehicle sale",
	"vente aux enchères", "enchères", "vente de véhicules", "subasta", "venta de vehículos",
	"sale of it equipment", "selling equipment", "disposal of assets",
}

// OGPRelevant reports whether text mentions an open-government topic.
func OGPRelevant(text string) bool {
	return containsAny(text, ogpKeywords)
}

// Excluded reports whether text describes an auction or asset sale.
func Excluded(text string) bool {
	return containsAny(text, excludeKeywords)
}

// keepForOptions applies the shared connector-side filters.
func keepForOptions(text string, opts FetchOptions) bool {
	if Excluded(text) {
		return false
	}
	return !opts.OGPOnly || OGPRelevant(text)
}

package catalog

func q(eps, adjust, random string) QuarterDef {
	return QuarterDef{EPSQoQ: eps, AdjustRatio: adjust, RandomRatio: random}
}

// DefaultDefs is the ten-company set used when the config file does not
// define one.
func DefaultDefs() []StockDef {
	return []StockDef{
		{Name: "TSMC", Symbol: "2330", Sector: SectorSemiconductor, FirstOpen: "58.50", Quarters: []QuarterDef{
			q("0.12", "0.8", "0.010"), q("0.05", "0.8", "0.010"), q("-0.03", "0.8", "0.012"), q("0.09", "0.8", "0.010"), q("0.15", "0.8", "0.010"),
		}},
		{Name: "MediaTek", Symbol: "2454", Sector: SectorSemiconductor, FirstOpen: "92.00", Quarters: []QuarterDef{
			q("0.08", "0.7", "0.015"), q("-0.06", "0.7", "0.015"), q("0.11", "0.7", "0.015"), q("0.02", "0.7", "0.015"), q("-0.04", "0.7", "0.015"),
		}},
		{Name: "Hon Hai", Symbol: "2317", Sector: SectorElectronics, FirstOpen: "10.40", Quarters: []QuarterDef{
			q("0.03", "0.6", "0.008"), q("0.04", "0.6", "0.008"), q("-0.02", "0.6", "0.008"), q("0.06", "0.6", "0.008"), q("0.01", "0.6", "0.008"),
		}},
		{Name: "Cathay Financial", Symbol: "2882", Sector: SectorFinance, FirstOpen: "4.55", Quarters: []QuarterDef{
			q("-0.10", "0.5", "0.006"), q("0.07", "0.5", "0.006"), q("0.02", "0.5", "0.006"), q("0.05", "0.5", "0.006"), q("0.03", "0.5", "0.006"),
		}},
		{Name: "Evergreen Marine", Symbol: "2603", Sector: SectorShipping, FirstOpen: "16.80", Quarters: []QuarterDef{
			q("0.35", "0.9", "0.025"), q("-0.22", "0.9", "0.025"), q("-0.18", "0.9", "0.030"), q("0.28", "0.9", "0.025"), q("0.10", "0.9", "0.025"),
		}},
		{Name: "Chunghwa Telecom", Symbol: "2412", Sector: SectorTelecom, FirstOpen: "12.20", Quarters: []QuarterDef{
			q("0.01", "0.4", "0.003"), q("0.01", "0.4", "0.003"), q("0.02", "0.4", "0.003"), q("0.00", "0.4", "0.003"), q("0.01", "0.4", "0.003"),
		}},
		{Name: "Formosa Plastics", Symbol: "1301", Sector: SectorMaterials, FirstOpen: "8.90", Quarters: []QuarterDef{
			q("-0.05", "0.6", "0.010"), q("-0.08", "0.6", "0.010"), q("0.04", "0.6", "0.010"), q("0.06", "0.6", "0.010"), q("-0.02", "0.6", "0.010"),
		}},
		{Name: "China Steel", Symbol: "2002", Sector: SectorMaterials, FirstOpen: "2.75", Quarters: []QuarterDef{
			q("0.02", "0.5", "0.008"), q("-0.04", "0.5", "0.008"), q("0.03", "0.5", "0.008"), q("-0.01", "0.5", "0.008"), q("0.05", "0.5", "0.008"),
		}},
		{Name: "Uni-President", Symbol: "1216", Sector: SectorConsumer, FirstOpen: "7.30", Quarters: []QuarterDef{
			q("0.03", "0.5", "0.005"), q("0.02", "0.5", "0.005"), q("0.04", "0.5", "0.005"), q("-0.01", "0.5", "0.005"), q("0.02", "0.5", "0.005"),
		}},
		{Name: "Largan Precision", Symbol: "3008", Sector: SectorElectronics, FirstOpen: "245.00", Quarters: []QuarterDef{
			q("-0.12", "0.7", "0.020"), q("0.18", "0.7", "0.020"), q("0.06", "0.7", "0.020"), q("-0.09", "0.7", "0.020"), q("0.14", "0.7", "0.020"),
		}},
	}
}

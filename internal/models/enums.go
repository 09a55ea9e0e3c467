package models

// CellType enumerates the simulated cell kinds.
type CellType int32

const (
	CellBacteria CellType = iota
	CellBacteroidota
	CellRedBlood
	CellNeuron
	CellCardiomyocyte
	CellPneumocyte
	CellMyocyte
	CellKeratinocyte
	CellEnterocyte
	CellPodocyte
	CellHemocytoblast
	CellLymphoblast
	CellMyeloblast
	CellMonocyte
	CellMacrophagocyte
	CellDendritic
	CellNeutrocyte
	CellNaturalKiller
	CellVirginTLymphocyte
	CellHelperTLymphocyte
	CellKillerTLymphocyte
	CellBLymphocyte
	CellEffectorBLymphocyte
	CellViralLoadCarrier
)

var cellTypeNames = [...]string{
	"BACTERIA", "BACTEROIDOTA", "REDBLOOD", "NEURON", "CARDIOMYOCYTE",
	"PNEUMOCYTE", "MYOCYTE", "KERATINOCYTE", "ENTEROCYTE", "PODOCYTE",
	"HEMOCYTOBLAST", "LYMPHOBLAST", "MYELOBLAST", "MONOCYTE", "MACROPHAGOCYTE",
	"DENDRITIC", "NEUTROCYTE", "NATURALKILLERCELL", "VIRGINTLYMPHOCYTE",
	"HELPERTLYMPHOCYTE", "KILLERTLYMPHOCYTE", "BLYMPHOCYTE",
	"EFFECTORBLYMPHOCYTE", "VIRALLOADCARRIER",
}

func (c CellType) String() string {
	if c >= 0 && int(c) < len(cellTypeNames) {
		return cellTypeNames[c]
	}
	return "UNKNOWN"
}

// CytokineType enumerates the chemical signals an operator can drop.
type CytokineType int32

const (
	CytokineUnknown CytokineType = iota
	CytokineCellDamage
	CytokineCellStressed
	CytokineAntigenPresent
	CytokineInduceChemotaxis
	CytokineCytotoxins
)

func (c CytokineType) String() string {
	switch c {
	case CytokineCellDamage:
		return "CELL_DAMAGE"
	case CytokineCellStressed:
		return "CELL_STRESSED"
	case CytokineAntigenPresent:
		return "ANTIGEN_PRESENT"
	case CytokineInduceChemotaxis:
		return "INDUCE_CHEMOTAXIS"
	case CytokineCytotoxins:
		return "CYTOTOXINS"
	default:
		return "UNKNOWN"
	}
}

// ParseCytokineType accepts the upper-case enum names.
func ParseCytokineType(s string) CytokineType {
	for c := CytokineCellDamage; c <= CytokineCytotoxins; c++ {
		if c.String() == s {
			return c
		}
	}
	return CytokineUnknown
}

// CellActionStatus is the last action a cell took.
type CellActionStatus int32

const (
	ActionDoNothing CellActionStatus = iota
	ActionRepair
	ActionIncurDamage
	ActionDespawn
	ActionApoptosis
	ActionDoWork
	ActionTransport
	ActionMitosis
)

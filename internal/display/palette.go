package display

import "civcal/internal/model"

// palettes is the single category -> color table used for calendar
// cells, badges and exports alike.
var palettes = map[model.Category]model.Palette{
	model.CategoryBirth:    {Fill: "#4caf50", Border: "#388e3c", Text: "#ffffff"},
	model.CategoryMarriage: {Fill: "#e91e63", Border: "#c2185b", Text: "#ffffff"},
	model.CategoryDeath:    {Fill: "#607d8b", Border: "#455a64", Text: "#ffffff"},
	model.CategoryOther:    {Fill: "#2196f3", Border: "#1976d2", Text: "#ffffff"},
}

var badges = map[model.Category]string{
	model.CategoryBirth:    "Naissance",
	model.CategoryMarriage: "Mariage",
	model.CategoryDeath:    "Décès",
	model.CategoryOther:    "Autre",
}

// PaletteFor returns the palette for c, or the "other" entry when c is
// not a known category.
func PaletteFor(c model.Category) model.Palette {
	if p, ok := palettes[c]; ok {
		return p
	}
	return palettes[model.CategoryOther]
}

func BadgeText(c model.Category) string {
	if b, ok := badges[c]; ok {
		return b
	}
	return badges[model.CategoryOther]
}

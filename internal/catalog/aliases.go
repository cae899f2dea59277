package catalog

import (
	"sort"
	"strings"
)

// Categories maps the catalog's category names to their short English aliases.
var Categories = map[string]string{
	"POPS＆アニメ":           "pops",
	"niconico＆ボーカロイド":    "vocaloid",
	"東方Project":          "touhou",
	"ゲーム＆バラエティ":         "game",
	"maimai":             "maimai",
	"オンゲキ＆CHUNITHM":     "ongeki",
}

// Versions maps the catalog's version names to their short English aliases.
var Versions = map[string]string{
	"maimai":            "maimai",
	"maimai PLUS":       "maimai plus",
	"GreeN":             "green",
	"GreeN PLUS":        "green plus",
	"ORANGE":            "orange",
	"ORANGE PLUS":       "orange plus",
	"PiNK":              "pink",
	"PiNK PLUS":         "pink plus",
	"MURASAKi":          "murasaki",
	"MURASAKi PLUS":     "murasaki plus",
	"MiLK":              "milk",
	"MiLK PLUS":         "milk plus",
	"FiNALE":            "finale",
	"maimaiでらっくす":       "deluxe",
	"maimaiでらっくす PLUS":  "deluxe plus",
	"Splash":            "splash",
	"Splash PLUS":       "splash plus",
	"UNiVERSE":          "universe",
	"UNiVERSE PLUS":     "universe plus",
	"FESTiVAL":          "festival",
	"FESTiVAL PLUS":     "festival plus",
	"BUDDiES":           "buddies",
	"BUDDiES PLUS":      "buddies plus",
	"PRiSM":             "prism",
	"PRiSM PLUS":        "prism plus",
	"CiRCLE":            "circle",
	"宴会場":               "banquet",
	"うちゅう":              "uchuu",
}

// Aliases resolves user input to the exact name stored in the catalog. Lookups are case
// insensitive and accept either the catalog name or its alias.
type Aliases struct {
	lookup map[string]string
}

// NewAliases indexes names, a map of catalog name to alias.
func NewAliases(names map[string]string) *Aliases {
	a := &Aliases{lookup: make(map[string]string, len(names)*2)}
	for name, alias := range names {
		a.lookup[strings.ToLower(alias)] = name
		a.lookup[strings.ToLower(name)] = name
	}
	return a
}

// Resolve returns the catalog name for input.
func (a *Aliases) Resolve(input string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(input))
	if key == "" {
		return "", false
	}
	name, ok := a.lookup[key]
	return name, ok
}

// ResolveAll resolves each input, reporting the first one that is unknown.
func (a *Aliases) ResolveAll(inputs []string) ([]string, string, bool) {
	out := make([]string, 0, len(inputs))
	for _, in := range inputs {
		if strings.TrimSpace(in) == "" {
			continue
		}
		name, ok := a.Resolve(in)
		if !ok {
			return nil, in, false
		}
		out = append(out, name)
	}
	return out, "", true
}

// Option is one selectable filter value.
type Option struct {
	Name  string `json:"name"`
	Alias string `json:"alias"`
	Songs int    `json:"songs"`
}

func options(names map[string]string, counts map[string]int) []Option {
	out := make([]Option, 0, len(counts))
	for name, n := range counts {
		alias, ok := names[name]
		if !ok {
			alias = strings.ToLower(name)
		}
		out = append(out, Option{Name: name, Alias: alias, Songs: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

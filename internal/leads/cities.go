package leads

import (
	"slices"
	"strings"
)

const (
	DefaultDepth = 5
	MaxDepth     = 25
)

// topCities lists the most populous cities per state, largest first.
var topCities = map[string][]string{
	"alabama": {
		"Birmingham", "Montgomery", "Mobile", "Huntsville", "Tuscaloosa",
		"Hoover", "Dothan", "Auburn", "Decatur", "Madison",
		"Florence", "Gadsden", "Vestavia Hills", "Prattville", "Phenix City",
		"Alabaster", "Bessemer", "Enterprise", "Opelika", "Homewood",
		"Northport", "Anniston", "Athens", "Daphne", "Pelham",
	},
	"alaska": {
		"Anchorage", "Fairbanks", "Juneau", "Sitka", "Ketchikan",
		"Wasilla", "Kenai", "Kodiak", "Bethel", "Palmer",
		"Homer", "Unalaska", "Barrow", "Soldotna", "Valdez",
		"Nome", "Kotzebue", "Petersburg", "Seward", "Wrangell",
		"Dillingham", "Cordova", "North Pole", "Houston", "Craig",
	},
	"arizona": {
		"Phoenix", "Tucson", "Mesa", "Chandler", "Glendale",
		"Scottsdale", "Gilbert", "Tempe", "Peoria", "Surprise",
		"Yuma", "Avondale", "Goodyear", "Flagstaff", "Buckeye",
		"Lake Havasu City", "Casa Grande", "Sierra Vista", "Maricopa", "Oro Valley",
		"Prescott", "Bullhead City", "Prescott Valley", "Apache Junction", "Queen Creek",
	},
	"arkansas": {
		"Little Rock", "Fort Smith", "Fayetteville", "Springdale", "Jonesboro",
		"North Little Rock", "Conway", "Rogers", "Pine Bluff", "Bentonville",
		"Hot Springs", "Benton", "Sherwood", "Texarkana", "Russellville",
		"Bella Vista", "Paragould", "Cabot", "West Memphis", "Searcy",
		"Van Buren", "Bryant", "Siloam Springs", "El Dorado", "Forrest City",
	},
	"california": {
		"Los Angeles", "San Diego", "San Jose", "San Francisco", "Fresno",
		"Sacramento", "Long Beach", "Oakland", "Bakersfield", "Anaheim",
		"Santa Ana", "Riverside", "Stockton", "Irvine", "Chula Vista",
		"Fremont", "San Bernardino", "Modesto", "Oxnard", "Fontana",
		"Moreno Valley", "Glendale", "Huntington Beach", "Santa Clarita", "Garden Grove",
	},
	"new york": {
		"New York", "Buffalo", "Rochester", "Yonkers", "Syracuse",
		"Albany", "New Rochelle", "Mount Vernon", "Schenectady", "Utica",
		"White Plains", "Hempstead", "Troy", "Niagara Falls", "Binghamton",
		"Freeport", "Valley Stream", "Long Beach", "Rome", "North Tonawanda",
		"Poughkeepsie", "Jamestown", "Ithaca", "Elmira", "Newburgh",
	},
	"ohio": {
		"Columbus", "Cleveland", "Cincinnati", "Toledo", "Akron",
		"Dayton", "Parma", "Canton", "Youngstown", "Lorain",
	},
	"texas": {
		"Houston", "San Antonio", "Dallas", "Austin", "Fort Worth",
		"El Paso", "Arlington", "Corpus Christi", "Plano", "Laredo",
	},
}

// ClampDepth maps a requested depth into [1, MaxDepth]; 0 means DefaultDepth.
func ClampDepth(depth int) int {
	switch {
	case depth == 0:
		return DefaultDepth
	case depth < 1:
		return 1
	case depth > MaxDepth:
		return MaxDepth
	}
	return depth
}

// Cities returns up to depth cities for state. States without a table
// search the state itself.
func Cities(state string, depth int) []string {
	state = strings.TrimSpace(state)
	cities, ok := topCities[strings.ToLower(state)]
	if !ok {
		return []string{state}
	}
	depth = ClampDepth(depth)
	if depth > len(cities) {
		depth = len(cities)
	}
	return append([]string(nil), cities[:depth]...)
}

// KnownStates lists the lower-cased states that have a city table, sorted.
func KnownStates() []string {
	out := make([]string, 0, len(topCities))
	for s := range topCities {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

package stations

// Station tables per supported city. The station list is static reference
// data; users carrying a station not present here are excluded from
// per-station stats but still count toward city totals.
var cities = map[string][]string{
	"spb": {
		"Девяткино",
		"Площадь Восстания",
		"Пушкинская",
		"Технологический институт",
		"Невский проспект",
		"Гостиный двор",
		"Василеостровская",
		"Петроградская",
		"Чёрная речка",
	},
	"msk": {
		"Комсомольская",
		"Охотный Ряд",
		"Арбатская",
		"Киевская",
		"Таганская",
		"Парк Культуры",
		"Маяковская",
		"Новослободская",
	},
}

// ForCity returns the station list for a city, or nil for an unknown city.
func ForCity(city string) []string {
	return cities[city]
}

// KnownCity reports whether the city has a station table.
func KnownCity(city string) bool {
	_, ok := cities[city]
	return ok
}

// Cities returns the list of supported city codes.
func Cities() []string {
	out := make([]string, 0, len(cities))
	for c := range cities {
		out = append(out, c)
	}
	return out
}

package cityflow

type HighwayType uint16

const (
	HIGHWAY_MOTORWAY = HighwayType(iota + 1)
	HIGHWAY_MOTORWAY_LINK
	HIGHWAY_TRUNK
	HIGHWAY_TRUNK_LINK
	HIGHWAY_PRIMARY
	HIGHWAY_PRIMARY_LINK
	HIGHWAY_SECONDARY
	HIGHWAY_SECONDARY_LINK
	HIGHWAY_TERTIARY
	HIGHWAY_TERTIARY_LINK
	HIGHWAY_UNCLASSIFIED
	HIGHWAY_RESIDENTIAL
	HIGHWAY_LIVING_STREET
	HIGHWAY_SERVICE
)

func (iotaIdx HighwayType) String() string {
	return [...]string{"motorway", "motorway_link", "trunk", "trunk_link", "primary", "primary_link", "secondary", "secondary_link", "tertiary", "tertiary_link", "unclassified", "residential", "living_street", "service"}[iotaIdx-1]
}

func getHighwayType(str string) HighwayType {
	if found, ok := highwaysTypes[str]; ok {
		return found
	}
	return 0
}

var (
	roadClassByHighway = map[HighwayType]RoadClass{
		HIGHWAY_MOTORWAY:       ROAD_HIGHWAY,
		HIGHWAY_MOTORWAY_LINK:  ROAD_HIGHWAY,
		HIGHWAY_TRUNK:          ROAD_HIGHWAY,
		HIGHWAY_TRUNK_LINK:     ROAD_HIGHWAY,
		HIGHWAY_PRIMARY:        ROAD_ARTERIAL,
		HIGHWAY_PRIMARY_LINK:   ROAD_ARTERIAL,
		HIGHWAY_SECONDARY:      ROAD_ARTERIAL,
		HIGHWAY_SECONDARY_LINK: ROAD_ARTERIAL,
		HIGHWAY_TERTIARY:       ROAD_COLLECTOR,
		HIGHWAY_TERTIARY_LINK:  ROAD_COLLECTOR,
		HIGHWAY_UNCLASSIFIED:   ROAD_COLLECTOR,
		HIGHWAY_RESIDENTIAL:    ROAD_LOCAL,
		HIGHWAY_LIVING_STREET:  ROAD_LOCAL,
		HIGHWAY_SERVICE:        ROAD_LOCAL,
	}

	onewayDefaultByHighway = map[HighwayType]bool{
		HIGHWAY_MOTORWAY:      true,
		HIGHWAY_MOTORWAY_LINK: true,
	}

	highwaysTypes = map[string]HighwayType{
		"motorway":       HIGHWAY_MOTORWAY,
		"motorway_link":  HIGHWAY_MOTORWAY_LINK,
		"trunk":          HIGHWAY_TRUNK,
		"trunk_link":     HIGHWAY_TRUNK_LINK,
		"primary":        HIGHWAY_PRIMARY,
		"primary_link":   HIGHWAY_PRIMARY_LINK,
		"secondary":      HIGHWAY_SECONDARY,
		"secondary_link": HIGHWAY_SECONDARY_LINK,
		"tertiary":       HIGHWAY_TERTIARY,
		"tertiary_link":  HIGHWAY_TERTIARY_LINK,
		"unclassified":   HIGHWAY_UNCLASSIFIED,
		"residential":    HIGHWAY_RESIDENTIAL,
		"living_street":  HIGHWAY_LIVING_STREET,
		"service":        HIGHWAY_SERVICE,
	}

	junctionTypes = map[string]struct{}{
		"roundabout": {},
		"circular":   {},
	}

	stopTags = map[string]map[string]struct{}{
		"highway": {
			"bus_stop": {},
		},
		"public_transport": {
			"stop_position": {},
			"platform":      {},
		},
		"railway": {
			"station":   {},
			"halt":      {},
			"tram_stop": {},
		},
	}
)

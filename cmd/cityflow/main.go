package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"strings"

	"github.com/LdDl/cityflow"
	"github.com/LdDl/cityflow/api"
	"github.com/LdDl/cityflow/store"
	redisstore "github.com/LdDl/cityflow/store/redis"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var (
	configFile  = flag.String("config", "", "YAML configuration file. Defaults are used when empty")
	osmFileName = flag.String("osm", "", "Filename of *.osm / *.osm.pbf file to import road network from")
	tagStr      = flag.String("tags", "", "Set of highway tags to import from OSM (separated by commas). Every road highway when empty")
	csvFileName = flag.String("csv", "", "Prefix of network CSV files: '<prefix>_nodes.csv' and '<prefix>_segments.csv'")
	gridSize    = flag.Int("grid", 10, "Size of generated grid network (used when neither -osm nor -csv is provided)")
	gridSpacing = flag.Float64("spacing", 250, "Spacing (meters) of generated grid network")
	epochs      = flag.Int("epochs", 10, "Number of epochs to simulate")
	trips       = flag.Int("trips", 500, "Number of random trips per epoch")
	modesStr    = flag.String("modes", "drive,walk,transit", "Modes of random trips (separated by commas)")
	seed        = flag.Int64("seed", 1, "Random seed for trip generation")
	sqlitePath  = flag.String("sqlite", "", "SQLite database for state slots and statistics history")
	redisAddr   = flag.String("redis", "", "Redis address for state slots and statistics channel")
	slot        = flag.String("slot", "latest", "State slot to restore from and save to")
	restore     = flag.Bool("restore", false, "Restore engine from state slot before simulation")
	out         = flag.String("out", "", "Filename of LOS report. E.g.: if file name is 'los.csv' then 'los.csv' (edges with WKT) and 'los.geojson' will be produced")
	offset      = flag.Float64("offset", 2, "Offset (meters) of edges in GeoJSON LOS report, keeps both directions of two-way segments visible")
	exportNet   = flag.String("export", "", "Prefix of CSV files to export network to")
	serveAddr   = flag.String("serve", "", "Address to serve HTTP API on after simulation (e.g. ':8080'). Disabled when empty")
	verbose     = flag.Bool("verbose", true, "Print progress")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Fatalln(err)
	}
}

func run() error {
	ctx := context.Background()
	cfg := cityflow.DefaultConfig()
	if *configFile != "" {
		var err error
		cfg, err = cityflow.LoadConfig(*configFile)
		if err != nil {
			return err
		}
	}
	modes, err := cityflow.ParseModeSet(*modesStr)
	if err != nil {
		return err
	}

	var stateStores []cityflow.StateStore
	options := []func(*cityflow.Engine){
		cityflow.WithConfig(cfg),
		cityflow.WithVerbose(*verbose),
	}
	if *sqlitePath != "" {
		sqliteStore, err := store.NewSQLiteStore(*sqlitePath)
		if err != nil {
			return err
		}
		defer sqliteStore.Close()
		stateStores = append(stateStores, sqliteStore)
		options = append(options, cityflow.WithStatsSink(sqliteStore))
	}
	if *redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: *redisAddr})
		defer client.Close()
		redisStore := redisstore.NewStore(client, "")
		stateStores = append(stateStores, redisStore)
		options = append(options, cityflow.WithStatsSink(redisStore))
	}

	var proj *cityflow.Projection
	var engine *cityflow.Engine
	if *restore && len(stateStores) > 0 {
		state, err := stateStores[0].LoadState(ctx, *slot)
		if err != nil {
			return errors.Wrap(err, "Can't restore state")
		}
		engine, err = cityflow.NewEngineFromState(state, options...)
		if err != nil {
			return err
		}
	} else {
		var nodes []cityflow.Node
		var segments []cityflow.Segment
		nodes, segments, proj, err = loadNetwork()
		if err != nil {
			return err
		}
		if *exportNet != "" {
			if err := cityflow.ExportNetworkToCSV(*exportNet, nodes, segments); err != nil {
				return err
			}
		}
		engine, err = cityflow.NewEngine(nodes, segments, options...)
		if err != nil {
			return err
		}
	}
	if *verbose {
		fmt.Println(engine)
	}

	rnd := rand.New(rand.NewSource(*seed))
	nodes := engine.Snapshot().Graph().Nodes()
	nextTripID := uint64(0)
	for i := 0; i < *epochs && len(nodes) > 1; i++ {
		reqs := make([]cityflow.TripRequest, *trips)
		for j := range reqs {
			origin := nodes[rnd.Intn(len(nodes))].ID
			destination := nodes[rnd.Intn(len(nodes))].ID
			reqs[j] = cityflow.TripRequest{
				ID:          nextTripID,
				Origin:      origin,
				Destination: destination,
				Modes:       modes,
			}
			nextTripID++
		}
		engine.AssignTrips(reqs, 0)
		stats, err := engine.AdvanceEpoch(ctx)
		if err != nil {
			return err
		}
		if !*verbose {
			fmt.Println(stats)
		}
	}

	for _, stateStore := range stateStores {
		if err := stateStore.SaveState(ctx, *slot, engine.ExportState()); err != nil {
			return err
		}
	}

	if *out != "" {
		if err := exportLOS(engine.Snapshot(), proj); err != nil {
			return err
		}
	}

	if *serveAddr != "" {
		serverOptions := []func(*api.Server){}
		if proj != nil {
			serverOptions = append(serverOptions, api.WithProjection(*proj))
		}
		return api.NewServer(engine, serverOptions...).Run(*serveAddr)
	}
	return nil
}

func loadNetwork() ([]cityflow.Node, []cityflow.Segment, *cityflow.Projection, error) {
	switch {
	case *osmFileName != "":
		parserOptions := []func(*cityflow.Parser){
			cityflow.WithParserVerbose(*verbose),
		}
		if *tagStr != "" {
			parserOptions = append(parserOptions, cityflow.WithHighways(strings.Split(*tagStr, ",")))
		}
		network, err := cityflow.NewParser(*osmFileName, parserOptions...).Parse()
		if err != nil {
			return nil, nil, nil, err
		}
		return network.Nodes, network.Segments, &network.Projection, nil
	case *csvFileName != "":
		nodes, segments, err := cityflow.ImportNetworkFromCSV(*csvFileName)
		if err != nil {
			return nil, nil, nil, err
		}
		return nodes, segments, nil, nil
	default:
		nodes, segments := cityflow.NewGridNetwork(*gridSize, *gridSize, *gridSpacing, cityflow.ROAD_COLLECTOR)
		return nodes, segments, nil, nil
	}
}

func exportLOS(snap *cityflow.Snapshot, proj *cityflow.Projection) error {
	telemetries := snap.Telemetries()
	if err := cityflow.ExportTelemetryToCSV(*out, telemetries, proj); err != nil {
		return err
	}
	fnameParts := strings.Split(*out, ".csv")
	return cityflow.ExportTelemetryToGeoJSON(fnameParts[0]+".geojson", telemetries, proj, *offset)
}

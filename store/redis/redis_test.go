package redis

import (
	"context"
	"encoding/json"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/LdDl/cityflow"
	"github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

func prepareStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewStore(client, "test"), mr
}

func TestStoreState(t *testing.T) {
	s, mr := prepareStore(t)
	defer mr.Close()
	ctx := context.Background()

	nodes, segments := cityflow.NewGridNetwork(2, 3, 100, cityflow.ROAD_LOCAL)
	engine, err := cityflow.NewEngine(nodes, segments)
	if err != nil {
		t.Error(err)
		return
	}
	engine.SetVolume(cityflow.ForwardEdgeID(2), 640)
	if _, err := engine.AdvanceEpoch(ctx); err != nil {
		t.Error(err)
		return
	}
	state := engine.ExportState()
	if err := s.SaveState(ctx, "baseline", state); err != nil {
		t.Error(err)
		return
	}
	if err := s.SaveState(ctx, "scenario", state); err != nil {
		t.Error(err)
		return
	}
	if !mr.Exists("test:state:baseline") {
		t.Errorf("State must be kept under prefixed key")
	}
	loaded, err := s.LoadState(ctx, "baseline")
	if err != nil {
		t.Error(err)
		return
	}
	if !reflect.DeepEqual(loaded, state) {
		t.Errorf("Loaded state must match saved one")
	}
	restored, err := cityflow.NewEngineFromState(loaded)
	if err != nil {
		t.Error(err)
		return
	}
	tm, _ := restored.Snapshot().Telemetry(cityflow.ForwardEdgeID(2))
	if tm.Volume != 640 {
		t.Errorf("Restored volume must be %f, but got %f", 640.0, tm.Volume)
	}

	slots, err := s.Slots(ctx)
	if err != nil {
		t.Error(err)
		return
	}
	sort.Strings(slots)
	if !reflect.DeepEqual(slots, []string{"baseline", "scenario"}) {
		t.Errorf("Slots must be [baseline scenario], but got %v", slots)
	}

	if _, err := s.LoadState(ctx, "missing"); !errors.Is(err, cityflow.ErrStateNotFound) {
		t.Errorf("Missing slot must give %v, but got %v", cityflow.ErrStateNotFound, err)
	}
	mr.Set("test:state:broken", "{")
	if _, err := s.LoadState(ctx, "broken"); err == nil {
		t.Errorf("Broken payload must give error")
	}
}

func TestStoreStats(t *testing.T) {
	s, mr := prepareStore(t)
	defer mr.Close()
	ctx := context.Background()

	if _, ok := s.LatestStats(ctx); ok {
		t.Errorf("There must be no stats before first epoch")
	}

	sub := s.client.Subscribe(ctx, s.StatsChannel())
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Error(err)
		return
	}

	nodes, segments := cityflow.NewGridNetwork(2, 2, 100, cityflow.ROAD_LOCAL)
	engine, err := cityflow.NewEngine(nodes, segments, cityflow.WithStatsSink(s))
	if err != nil {
		t.Error(err)
		return
	}
	engine.AssignTrips([]cityflow.TripRequest{{Origin: 0, Destination: 3, Modes: cityflow.NewModeSet(cityflow.MODE_DRIVE)}}, 1)
	if _, err := engine.AdvanceEpoch(ctx); err != nil {
		t.Error(err)
		return
	}

	latest, ok := s.LatestStats(ctx)
	if !ok {
		t.Errorf("Latest stats must be stored")
		return
	}
	if latest.Epoch != 1 || latest.Routed != 1 || latest.ModeShare[cityflow.MODE_DRIVE] != 1 {
		t.Errorf("Latest stats must describe epoch 1 with one driven trip, but got %s", latest)
	}

	select {
	case msg := <-sub.Channel():
		published := &cityflow.EpochStats{}
		if err := json.Unmarshal([]byte(msg.Payload), published); err != nil {
			t.Error(err)
			return
		}
		if published.Epoch != 1 {
			t.Errorf("Published stats must be of epoch %d, but got %d", 1, published.Epoch)
		}
	case <-time.After(2 * time.Second):
		t.Errorf("Stats must be published to channel %s", s.StatsChannel())
	}
}

func TestStoreDefaultPrefix(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	defer mr.Close()
	s := NewStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "")
	if s.StatsChannel() != "cityflow:stats" {
		t.Errorf("Channel must be 'cityflow:stats', but got '%s'", s.StatsChannel())
	}
}

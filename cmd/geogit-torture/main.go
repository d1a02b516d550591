package main

import (
	"context"
	"fmt"
	"maps"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/paulmach/orb"
	log "github.com/sirupsen/logrus"

	geogit "github.com/yokosogithub/GeoGit-sub002"
	"github.com/yokosogithub/GeoGit-sub002/internal/compression"
	"github.com/yokosogithub/GeoGit-sub002/pkg/logging"
	"github.com/yokosogithub/GeoGit-sub002/pkg/model"
	"github.com/yokosogithub/GeoGit-sub002/pkg/repository"
	"github.com/yokosogithub/GeoGit-sub002/pkg/storage"
	"github.com/yokosogithub/GeoGit-sub002/pkg/tree"
)

const usage = `geogit-torture

Imports random point features into several layers at once, commits them and
reads every feature back.

Usage:
  geogit-torture [--dir=<dir>] [--layers=<n>] [--features=<n>] [--codec=<name>]

Options:
  -h --help          Show this screen.
  --dir=<dir>        Repository directory [default: ./tmp].
  --layers=<n>       Layers imported concurrently [default: 4].
  --features=<n>     Features per layer [default: 10000].
  --codec=<name>     Object compression [default: s2].
`

type Opts struct {
	Dir      string `docopt:"--dir"`
	Layers   string `docopt:"--layers"`
	Features string `docopt:"--features"`
	Codec    string `docopt:"--codec"`
}

func main() {
	o, _ := docopt.ParseDoc(usage)
	var opts Opts
	if err := o.Bind(&opts); err != nil {
		log.Fatal(err)
	}
	layers, err := strconv.Atoi(opts.Layers)
	if err != nil {
		log.Fatalf("--layers: %v", err)
	}
	features, err := strconv.Atoi(opts.Features)
	if err != nil {
		log.Fatalf("--features: %v", err)
	}
	codec, err := compression.ParseCodec(opts.Codec)
	if err != nil {
		log.Fatal(err)
	}
	dir, err := filepath.Abs(opts.Dir)
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	g, err := geogit.New(geogit.Config{Paths: []string{dir}, Compression: codec, Logger: logging.New(os.Getenv("LOG_LEVEL"))})
	if err != nil {
		log.Fatal(err)
	}
	if err := g.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer g.CloseWithoutContext()
	repo, err := g.Repository()
	if err != nil {
		log.Fatal(err)
	}

	start := time.Now()
	if err := importLayers(ctx, repo, layers, features); err != nil {
		log.Fatal(err)
	}
	imported := time.Since(start)

	if err := repo.Index().Stage(ctx, nil); err != nil {
		log.Fatal(err)
	}
	c, err := repo.Commit(ctx, repository.CommitOptions{
		Author:  model.Person{Name: "geogit-torture"},
		Message: fmt.Sprintf("import %d layers", layers),
	})
	if err != nil {
		log.Fatal(err)
	}
	committed := time.Since(start)

	total, missing, err := verify(ctx, repo, c.TreeID)
	if err != nil {
		log.Fatal(err)
	}

	rate := float64(total) / imported.Seconds()
	fmt.Printf("features: %s  import: %s (%s/s)  commit: %s\n",
		humanize.Comma(int64(total)), imported.Round(time.Millisecond), humanize.Commaf(float64(int64(rate))), committed.Round(time.Millisecond))
	fmt.Printf("not found: %.2f%%  (%d of %d)\n", float64(missing)/float64(max(total, 1))*100, missing, total)
}

func randomFeatures(n int) map[string]*model.Feature {
	out := make(map[string]*model.Feature, n)
	for range n {
		p := orb.Point{rand.Float64()*360 - 180, rand.Float64()*180 - 90}
		out[uuid.NewString()] = model.NewFeature(model.UUID(uuid.New()), model.Geometry(p), model.Int64(rand.Int64()))
	}
	return out
}

// importLayers writes the feature objects of every layer from its own
// goroutine, then links the layers into the working tree one at a time.
func importLayers(ctx context.Context, repo *repository.Repository, layers, features int) error {
	data := make([]map[string]*model.Feature, layers)
	written := &storage.CountingListener{}
	var wg sync.WaitGroup
	errs := make(chan error, layers)
	for i := range layers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data[i] = randomFeatures(features)
			objects := func(yield func(model.RevObject) bool) {
				for _, f := range data[i] {
					if !yield(f) {
						return
					}
				}
			}
			errs <- repo.Staging().PutAll(ctx, objects, written)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	log.WithFields(log.Fields{
		"objects": written.InsertedCount(),
		"bytes":   humanize.Bytes(uint64(written.Bytes())),
	}).Info("feature objects written")

	for i, layer := range data {
		if _, err := repo.WorkingTree().Insert(ctx, "layer"+strconv.Itoa(i), maps.All(layer), nil, nil); err != nil {
			return err
		}
	}
	return nil
}

func verify(ctx context.Context, repo *repository.Repository, treeID model.ObjectId) (total, missing int, err error) {
	root, err := storage.GetTree(ctx, repo.Objects(), treeID)
	if err != nil {
		return 0, 0, err
	}
	for ref, err := range tree.Walk(ctx, repo.Objects(), root, tree.RecursiveFeaturesOnly) {
		if err != nil {
			return total, missing, err
		}
		total++
		ok, err := repo.Objects().Exists(ctx, ref.ObjectID())
		if err != nil {
			return total, missing, err
		}
		if !ok {
			missing++
		}
	}
	return total, missing, nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/dustin/go-humanize"
	"github.com/paulmach/orb/encoding/wkt"
	log "github.com/sirupsen/logrus"

	geogit "github.com/yokosogithub/GeoGit-sub002"
	"github.com/yokosogithub/GeoGit-sub002/internal/config"
	"github.com/yokosogithub/GeoGit-sub002/pkg/diff"
	"github.com/yokosogithub/GeoGit-sub002/pkg/logging"
	"github.com/yokosogithub/GeoGit-sub002/pkg/model"
	"github.com/yokosogithub/GeoGit-sub002/pkg/objectdb"
	"github.com/yokosogithub/GeoGit-sub002/pkg/refs"
	"github.com/yokosogithub/GeoGit-sub002/pkg/repository"
	"github.com/yokosogithub/GeoGit-sub002/pkg/storage"
	"github.com/yokosogithub/GeoGit-sub002/pkg/tree"
)

const usage = `geogit-inspect

Usage:
  geogit-inspect [options] log [<rev>]
  geogit-inspect [options] ls-tree [-r] [<treeish>]
  geogit-inspect [options] cat <rev>
  geogit-inspect [options] diff <old> <new>
  geogit-inspect [options] count <old> <new>
  geogit-inspect [options] refs
  geogit-inspect [options] stats

Options:
  -h --help             Show this screen.
  -c --config=<file>    YAML configuration file [default: geogit.yaml].
  -d --dir=<dir>        Repository directory, overrides the configuration file.
  -r                    Recurse into subtrees.
`

type Opts struct {
	Log       bool   `docopt:"log"`
	LsTree    bool   `docopt:"ls-tree"`
	Cat       bool   `docopt:"cat"`
	Diff      bool   `docopt:"diff"`
	Count     bool   `docopt:"count"`
	Refs      bool   `docopt:"refs"`
	Stats     bool   `docopt:"stats"`
	Rev       string `docopt:"<rev>"`
	Treeish   string `docopt:"<treeish>"`
	Old       string `docopt:"<old>"`
	New       string `docopt:"<new>"`
	Config    string `docopt:"--config"`
	Dir       string `docopt:"--dir"`
	Recursive bool   `docopt:"-r"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, out io.Writer) int {
	parser := &docopt.Parser{HelpHandler: docopt.PrintHelpOnly}
	o, err := parser.ParseArgs(usage, args, "")
	if err != nil {
		return 2
	}
	var opts Opts
	if err := o.Bind(&opts); err != nil {
		log.Error(err)
		return 22
	}

	conf, err := loadConfig(opts)
	if err != nil {
		log.Error(err)
		return 78
	}
	ctx := context.Background()
	g, err := geogit.New(conf)
	if err != nil {
		log.Error(err)
		return 78
	}
	if err := g.Start(ctx); err != nil {
		log.Error(err)
		return 74
	}
	defer g.CloseWithoutContext()
	repo, err := g.Repository()
	if err != nil {
		log.Error(err)
		return 74
	}

	switch {
	case opts.Log:
		err = showLog(ctx, out, repo, orDefault(opts.Rev, refs.Head))
	case opts.LsTree:
		err = lsTree(ctx, out, repo, orDefault(opts.Treeish, refs.Head), opts.Recursive)
	case opts.Cat:
		err = cat(ctx, out, repo, opts.Rev)
	case opts.Diff:
		err = showDiff(ctx, out, repo, opts.Old, opts.New)
	case opts.Count:
		err = count(ctx, out, repo, opts.Old, opts.New)
	case opts.Refs:
		err = listRefs(ctx, out, repo)
	case opts.Stats:
		err = stats(ctx, out, repo)
	}
	if err != nil {
		log.Error(err)
		if errors.Is(err, model.ErrNotFound) {
			return 1
		}
		return 42
	}
	return 0
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// loadConfig reads the configuration file. A directory given on the
// command line wins and needs no file.
func loadConfig(opts Opts) (geogit.Config, error) {
	var f config.File
	if opts.Dir != "" {
		f = config.Default()
		f.InMemory = false
		f.Paths = []string{opts.Dir}
		f.LogLevel = "warn"
	} else {
		var err error
		if f, err = config.Load(opts.Config); err != nil {
			return geogit.Config{}, err
		}
	}
	if os.Getenv("DEBUG") == "1" {
		f.LogLevel = "debug"
	}
	conf, err := geogit.ConfigFromFile(f)
	if err != nil {
		return conf, err
	}
	conf.Logger = logging.New(f.LogLevel)
	return conf, nil
}

func when(p model.Person) string {
	return humanize.Time(time.UnixMilli(p.Timestamp))
}

func showLog(ctx context.Context, out io.Writer, repo *repository.Repository, rev string) error {
	id, err := repo.RevParse(ctx, rev)
	if err != nil {
		return err
	}
	for c, err := range repo.Log(ctx, id) {
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "commit %s\n", c.ID)
		if len(c.Parents) > 1 {
			short := make([]string, len(c.Parents))
			for i, p := range c.Parents {
				short[i] = p.Short(8)
			}
			fmt.Fprintf(out, "Merge: %s\n", strings.Join(short, " "))
		}
		fmt.Fprintf(out, "Author: %s <%s>\nDate:   %s\n\n    %s\n\n", c.Author.Name, c.Author.Email, when(c.Author), c.Message)
	}
	return nil
}

func lsTree(ctx context.Context, out io.Writer, repo *repository.Repository, treeish string, recursive bool) error {
	id, err := repo.ResolveTreeish(ctx, treeish)
	if err != nil {
		return err
	}
	root, err := storage.GetTree(ctx, repo.Staging(), id)
	if err != nil {
		return err
	}
	strategy := tree.Children
	if recursive {
		strategy = tree.Recursive
	}
	for ref, err := range tree.Walk(ctx, repo.Staging(), root, strategy) {
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s\t%s\n", ref.Type(), ref.ObjectID(), ref.Path())
	}
	return nil
}

func cat(ctx context.Context, out io.Writer, repo *repository.Repository, rev string) error {
	id, err := repo.RevParse(ctx, rev)
	if err != nil {
		return err
	}
	obj, err := repo.Staging().Get(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %s\n", obj.Type(), id)
	switch o := obj.(type) {
	case *model.Commit:
		fmt.Fprintf(out, "tree %s\n", o.TreeID)
		for _, p := range o.Parents {
			fmt.Fprintf(out, "parent %s\n", p)
		}
		fmt.Fprintf(out, "author %s <%s> %s\ncommitter %s <%s> %s\n\n%s\n",
			o.Author.Name, o.Author.Email, when(o.Author),
			o.Committer.Name, o.Committer.Email, when(o.Committer), o.Message)
	case *model.Tree:
		fmt.Fprintf(out, "size %s\ntrees %s\n", humanize.Comma(int64(o.Size)), humanize.Comma(int64(o.NumTrees)))
		for _, n := range o.Trees {
			fmt.Fprintf(out, "%s %s\t%s\n", n.Type, n.ObjectID, n.Name)
		}
		for _, n := range o.Features {
			fmt.Fprintf(out, "%s %s\t%s\n", n.Type, n.ObjectID, n.Name)
		}
		for _, b := range o.Buckets {
			fmt.Fprintf(out, "bucket %d %s\n", b.Index, b.ID)
		}
	case *model.Feature:
		for i, v := range o.Values {
			if g, ok := v.Geometry(); ok {
				fmt.Fprintf(out, "%d %s %s\n", i, v.Type, wkt.MarshalString(g))
				continue
			}
			fmt.Fprintf(out, "%d %s %v\n", i, v.Type, v.Data)
		}
	case *model.FeatureType:
		fmt.Fprintf(out, "name %s\n", o.Name)
		for _, a := range o.Attributes {
			fmt.Fprintf(out, "%s %s\n", a.Name, a.Type)
		}
	case *model.Tag:
		fmt.Fprintf(out, "object %s\ntag %s\ntagger %s <%s> %s\n\n%s\n",
			o.CommitID, o.Name, o.Tagger.Name, o.Tagger.Email, when(o.Tagger), o.Message)
	}
	return nil
}

func trees(ctx context.Context, repo *repository.Repository, oldRev, newRev string) (*model.Tree, *model.Tree, error) {
	oldID, err := repo.ResolveTreeish(ctx, oldRev)
	if err != nil {
		return nil, nil, err
	}
	newID, err := repo.ResolveTreeish(ctx, newRev)
	if err != nil {
		return nil, nil, err
	}
	oldTree, err := storage.GetTree(ctx, repo.Staging(), oldID)
	if err != nil {
		return nil, nil, err
	}
	newTree, err := storage.GetTree(ctx, repo.Staging(), newID)
	if err != nil {
		return nil, nil, err
	}
	return oldTree, newTree, nil
}

func showDiff(ctx context.Context, out io.Writer, repo *repository.Repository, oldRev, newRev string) error {
	oldTree, newTree, err := trees(ctx, repo, oldRev, newRev)
	if err != nil {
		return err
	}
	w := diff.NewWalker(repo.Staging(), repo.Staging(), oldTree, newTree)
	for e, err := range w.Entries(ctx) {
		if err != nil {
			return err
		}
		fmt.Fprintln(out, e)
	}
	return nil
}

func count(ctx context.Context, out io.Writer, repo *repository.Repository, oldRev, newRev string) error {
	oldTree, newTree, err := trees(ctx, repo, oldRev, newRev)
	if err != nil {
		return err
	}
	c, err := diff.Count(ctx, repo.Staging(), repo.Staging(), oldTree, newTree)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "features: %s added, %s removed, %s changed\n",
		humanize.Comma(int64(c.FeaturesAdded)), humanize.Comma(int64(c.FeaturesRemoved)), humanize.Comma(int64(c.FeaturesChanged)))
	fmt.Fprintf(out, "trees: %s added, %s removed, %s changed\n",
		humanize.Comma(int64(c.TreesAdded)), humanize.Comma(int64(c.TreesRemoved)), humanize.Comma(int64(c.TreesChanged)))
	return nil
}

func listRefs(ctx context.Context, out io.Writer, repo *repository.Repository) error {
	all, err := repo.Refs().GetAll(ctx, "")
	if err != nil {
		return err
	}
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(out, "%s %s\n", all[name], name)
	}
	return nil
}

func stats(ctx context.Context, out io.Writer, repo *repository.Repository) error {
	objects, err := objectdb.New(repo.Store().Space(repository.ObjectsSpace), objectdb.Config{Logger: repo.Logger()}).Count(ctx)
	if err != nil {
		return err
	}
	staged, err := objectdb.New(repo.Store().Space(repository.StagingSpace), objectdb.Config{Logger: repo.Logger()}).Count(ctx)
	if err != nil {
		return err
	}
	size, err := repo.Store().Size()
	if err != nil {
		return err
	}
	reads, writes := repo.Store().Stats()
	fmt.Fprintf(out, "objects: %s\nstaged: %s\nsize: %s\nreads: %s\nwrites: %s\n",
		humanize.Comma(int64(objects)), humanize.Comma(int64(staged)), humanize.Bytes(size),
		humanize.Comma(int64(reads)), humanize.Comma(int64(writes)))
	return nil
}

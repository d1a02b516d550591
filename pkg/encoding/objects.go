package encoding

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/yokosogithub/GeoGit-sub002/pkg/model"
)

func writePerson(w *writer, p model.Person) error {
	w.string(1, p.Name)
	w.string(2, p.Email)
	w.sint(3, p.Timestamp)
	w.sint(4, int64(p.TimeZoneOffset))
	return nil
}

func readPerson(b []byte) (model.Person, error) {
	var p model.Person
	err := readFields(b, func(f field) error {
		switch f.num {
		case 1:
			p.Name = f.str()
		case 2:
			p.Email = f.str()
		case 3:
			p.Timestamp = f.sint()
		case 4:
			p.TimeZoneOffset = int32(f.sint())
		}
		return nil
	})
	return p, err
}

func writeCommit(w *writer, c *model.Commit) error {
	w.id(1, c.TreeID)
	for _, p := range c.Parents {
		w.id(2, p)
	}
	if err := w.message(3, func(sub *writer) error { return writePerson(sub, c.Author) }); err != nil {
		return err
	}
	if err := w.message(4, func(sub *writer) error { return writePerson(sub, c.Committer) }); err != nil {
		return err
	}
	w.string(5, c.Message)
	return nil
}

func readCommit(b []byte) (*model.Commit, error) {
	c := &model.Commit{}
	err := readFields(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			c.TreeID, err = f.id()
		case 2:
			var parent model.ObjectId
			parent, err = f.id()
			c.Parents = append(c.Parents, parent)
		case 3:
			c.Author, err = readPerson(f.data)
		case 4:
			c.Committer, err = readPerson(f.data)
		case 5:
			c.Message = f.str()
		}
		return err
	})
	return c, err
}

func writeNode(w *writer, n model.Node) error {
	if n.Type != model.TypeTree && n.Type != model.TypeFeature {
		return fmt.Errorf("node %s: invalid node type %s", n.Name, n.Type)
	}
	w.string(1, n.Name)
	w.id(2, n.ObjectID)
	if !n.MetadataID.IsNull() {
		w.id(3, n.MetadataID)
	}
	w.varint(4, uint64(n.Type))
	w.bounds(5, n.Bounds)
	return nil
}

func readNode(b []byte) (model.Node, error) {
	var n model.Node
	err := readFields(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			n.Name = f.str()
		case 2:
			n.ObjectID, err = f.id()
		case 3:
			n.MetadataID, err = f.id()
		case 4:
			n.Type = model.ObjectType(f.scalar)
		case 5:
			n.Bounds, err = readBounds(f.data)
		}
		return err
	})
	if err == nil && n.Type != model.TypeTree && n.Type != model.TypeFeature {
		err = fmt.Errorf("node %s: invalid node type %s", n.Name, n.Type)
	}
	return n, err
}

func writeTree(w *writer, t *model.Tree) error {
	if len(t.Buckets) > 0 && t.NumDirectEntries() > 0 {
		return fmt.Errorf("tree mixes buckets and direct entries")
	}
	w.varint(1, t.Size)
	w.varint(2, uint64(t.NumTrees))
	for _, n := range t.Trees {
		if err := w.message(3, func(sub *writer) error { return writeNode(sub, n) }); err != nil {
			return err
		}
	}
	for _, n := range t.Features {
		if err := w.message(4, func(sub *writer) error { return writeNode(sub, n) }); err != nil {
			return err
		}
	}
	for i, b := range t.Buckets {
		if i > 0 && t.Buckets[i-1].Index >= b.Index {
			return fmt.Errorf("tree buckets are not sorted by index")
		}
		err := w.message(5, func(sub *writer) error {
			sub.varint(1, uint64(b.Index))
			sub.id(2, b.ID)
			sub.bounds(3, b.Bounds)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func readTree(b []byte) (*model.Tree, error) {
	t := &model.Tree{}
	err := readFields(b, func(f field) error {
		switch f.num {
		case 1:
			t.Size = f.scalar
		case 2:
			t.NumTrees = uint32(f.scalar)
		case 3:
			n, err := readNode(f.data)
			if err != nil {
				return err
			}
			t.Trees = append(t.Trees, n)
		case 4:
			n, err := readNode(f.data)
			if err != nil {
				return err
			}
			t.Features = append(t.Features, n)
		case 5:
			bucket, err := readBucket(f.data)
			if err != nil {
				return err
			}
			t.Buckets = append(t.Buckets, bucket)
		}
		return nil
	})
	return t, err
}

func readBucket(b []byte) (model.Bucket, error) {
	var bucket model.Bucket
	err := readFields(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			bucket.Index = uint32(f.scalar)
		case 2:
			bucket.ID, err = f.id()
		case 3:
			bucket.Bounds, err = readBounds(f.data)
		}
		return err
	})
	return bucket, err
}

func writeFeature(w *writer, feat *model.Feature) error {
	for i, v := range feat.Values {
		err := w.message(1, func(sub *writer) error {
			return writeValue(sub, v)
		})
		if err != nil {
			return fmt.Errorf("value %d: %w", i, err)
		}
	}
	return nil
}

func readFeature(b []byte) (*model.Feature, error) {
	feat := &model.Feature{}
	err := readFields(b, func(f field) error {
		if f.num != 1 {
			return nil
		}
		v, err := readValue(f.data)
		if err != nil {
			return fmt.Errorf("value %d: %w", len(feat.Values), err)
		}
		feat.Values = append(feat.Values, v)
		return nil
	})
	return feat, err
}

func writeFeatureType(w *writer, ft *model.FeatureType) error {
	w.string(1, ft.Name)
	for i, a := range ft.Attributes {
		if i > 0 && ft.Attributes[i-1].Name >= a.Name {
			return fmt.Errorf("feature type %s: attributes are not sorted by name", ft.Name)
		}
		_ = w.message(2, func(sub *writer) error {
			sub.string(1, a.Name)
			sub.varint(2, uint64(a.Type))
			sub.varint(3, protowire.EncodeBool(a.Nillable))
			sub.string(4, a.CRS)
			return nil
		})
	}
	return nil
}

func readFeatureType(b []byte) (*model.FeatureType, error) {
	ft := &model.FeatureType{}
	err := readFields(b, func(f field) error {
		switch f.num {
		case 1:
			ft.Name = f.str()
		case 2:
			var a model.AttributeDescriptor
			err := readFields(f.data, func(af field) error {
				switch af.num {
				case 1:
					a.Name = af.str()
				case 2:
					a.Type = model.FieldType(af.scalar)
				case 3:
					a.Nillable = protowire.DecodeBool(af.scalar)
				case 4:
					a.CRS = af.str()
				}
				return nil
			})
			if err != nil {
				return err
			}
			ft.Attributes = append(ft.Attributes, a)
		}
		return nil
	})
	return ft, err
}

func writeTag(w *writer, t *model.Tag) error {
	w.id(1, t.CommitID)
	w.string(2, t.Name)
	w.string(3, t.Message)
	return w.message(4, func(sub *writer) error { return writePerson(sub, t.Tagger) })
}

func readTag(b []byte) (*model.Tag, error) {
	t := &model.Tag{}
	err := readFields(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			t.CommitID, err = f.id()
		case 2:
			t.Name = f.str()
		case 3:
			t.Message = f.str()
		case 4:
			t.Tagger, err = readPerson(f.data)
		}
		return err
	})
	return t, err
}

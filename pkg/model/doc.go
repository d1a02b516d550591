// Package model holds the immutable, content addressed objects of a
// repository (commits, trees, features, feature types and tags), the nodes
// and buckets trees are made of, and the error taxonomy shared by the
// storage layers.
package model

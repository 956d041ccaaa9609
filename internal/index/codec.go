package index

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"imdex/internal/models"
	"imdex/internal/vptree"
)

const codecVersion = 1

// encodedTree is the msgpack document stored, zstd compressed, in the
// index_snapshot table.
type encodedTree struct {
	Version  int                            `msgpack:"v"`
	HashType string                         `msgpack:"hash_type"`
	HashSize int                            `msgpack:"hash_size"`
	Tree     *vptree.Snapshot[models.Point] `msgpack:"tree"`
}

func encodeTree(settings Settings, tree *vptree.Tree[models.Point]) ([]byte, error) {
	raw, err := msgpack.Marshal(&encodedTree{
		Version:  codecVersion,
		HashType: string(settings.HashType),
		HashSize: settings.HashSize,
		Tree:     tree.Snapshot(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode tree: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
}

func decodeTree(data []byte, settings Settings, opts ...vptree.Option) (*vptree.Tree[models.Point], error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress tree: %w", err)
	}

	var doc encodedTree
	if err := msgpack.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode tree: %w", err)
	}
	if doc.Version != codecVersion {
		return nil, fmt.Errorf("unsupported tree encoding version %d", doc.Version)
	}
	if doc.HashType != string(settings.HashType) || doc.HashSize != settings.HashSize {
		return nil, fmt.Errorf("tree was built with %s/%d, settings say %s/%d",
			doc.HashType, doc.HashSize, settings.HashType, settings.HashSize)
	}
	if doc.Tree == nil {
		return nil, fmt.Errorf("%w: missing tree", vptree.ErrMalformedSnapshot)
	}
	if doc.Tree.Capacity != settings.Capacity {
		return nil, fmt.Errorf("tree capacity %d differs from setting %d", doc.Tree.Capacity, settings.Capacity)
	}

	return vptree.Restore(doc.Tree, models.Distance, opts...)
}

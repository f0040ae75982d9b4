package vector

import (
	"encoding/binary"

	"github.com/stratadb/strata/pkg/ids"
	"github.com/stratadb/strata/pkg/value"
)

// userKey layout within the Vector primitive's key space, mirroring
// event's discriminator-byte scheme so the per-collection id counter
// and individual records share the Vector tag's key space without
// colliding; collection config lives under the separate VectorConfig
// tag.
const (
	discrimConfig byte = 0x00
	discrimMeta   byte = 0x01
	discrimRecord byte = 0x02
)

func configKey(ns ids.Namespace, collection string) ids.Key {
	buf := append([]byte{discrimConfig}, []byte(collection)...)
	return ids.NewKey(ns, ids.TagVectorConfig, buf)
}

func collectionMetaKey(ns ids.Namespace, collection string) ids.Key {
	buf := append([]byte{discrimMeta}, []byte(collection)...)
	return ids.NewKey(ns, ids.TagVector, buf)
}

func recordKey(ns ids.Namespace, collection string, userKey []byte) ids.Key {
	prefix := recordPrefix(ns, collection)
	buf := append(append([]byte(nil), prefix.UserKey...), userKey...)
	return ids.NewKey(ns, ids.TagVector, buf)
}

func recordPrefix(ns ids.Namespace, collection string) ids.Key {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(collection)))
	buf := append([]byte{discrimRecord}, lenBuf[:]...)
	buf = append(buf, collection...)
	return ids.NewKey(ns, ids.TagVector, buf)
}

// configToValue/valueToConfig project Config into the Value grammar so
// it travels through the WAL/snapshot paths unchanged.
func configToValue(c Config) value.Value {
	return value.Object(map[string]value.Value{
		"dimension":       value.Int(int64(c.Dimension)),
		"metric":          value.String(c.Metric.String()),
		"dtype":           value.String(c.Dtype.String()),
		"m":               value.Int(int64(c.M)),
		"ef_construction": value.Int(int64(c.EfConstruction)),
		"ef_search":       value.Int(int64(c.EfSearch)),
	})
}

func valueToConfig(v value.Value) (Config, bool) {
	obj, ok := v.AsObject()
	if !ok {
		return Config{}, false
	}
	dim, _ := obj["dimension"].AsInt()
	metricName, _ := obj["metric"].AsString()
	metric, ok := metricFromString(metricName)
	if !ok {
		return Config{}, false
	}
	dtypeName, _ := obj["dtype"].AsString()
	dtype, ok := dtypeFromString(dtypeName)
	if !ok {
		return Config{}, false
	}
	m, _ := obj["m"].AsInt()
	efc, _ := obj["ef_construction"].AsInt()
	efs, _ := obj["ef_search"].AsInt()
	return Config{
		Dimension:      int(dim),
		Metric:         metric,
		Dtype:          dtype,
		M:              int(m),
		EfConstruction: int(efc),
		EfSearch:       int(efs),
	}, true
}

// record is one vector's durable KV-layer payload. It is the source of truth for the embedding and metadata;
// delete removes it transactionally — the soft-delete
// marker lives only on the in-memory HNSW node, which stays in the
// graph for navigability after the KV record is gone.
type record struct {
	VectorID  uint64
	Key       string
	Embedding []float32
	Metadata  value.Value
}

func recordToValue(r record) value.Value {
	floats := make([]value.Value, len(r.Embedding))
	for i, f := range r.Embedding {
		floats[i] = value.Float(float64(f))
	}
	return value.Object(map[string]value.Value{
		"vector_id": value.Int(int64(r.VectorID)),
		"key":       value.String(r.Key),
		"embedding": value.Array(floats...),
		"metadata":  r.Metadata,
	})
}

func valueToRecord(v value.Value) (record, bool) {
	obj, ok := v.AsObject()
	if !ok {
		return record{}, false
	}
	vid, _ := obj["vector_id"].AsInt()
	key, _ := obj["key"].AsString()
	floatVals, _ := obj["embedding"].AsArray()
	embedding := make([]float32, len(floatVals))
	for i, fv := range floatVals {
		f, _ := fv.AsFloat()
		embedding[i] = float32(f)
	}
	return record{VectorID: uint64(vid), Key: key, Embedding: embedding, Metadata: obj["metadata"]}, true
}

// meta is the per-(branch, collection) next-VectorId counter.
type meta struct {
	NextID uint64
}

func metaToValue(m meta) value.Value {
	return value.Object(map[string]value.Value{"next_id": value.Int(int64(m.NextID))})
}

func valueToMeta(v value.Value) meta {
	obj, ok := v.AsObject()
	if !ok {
		return meta{}
	}
	n, _ := obj["next_id"].AsInt()
	return meta{NextID: uint64(n)}
}

package db

// DistanceMetric used by FT.SEARCH vector similarity queries.
type DistanceMetric string

const (
	// DistanceCosine is cosine distance.
	DistanceCosine DistanceMetric = "COSINE"
	// DistanceL2 is Euclidean distance.
	DistanceL2 DistanceMetric = "L2"
)

// VectorAlgorithm selects the indexing algorithm for vector fields in FT.CREATE.
type VectorAlgorithm string

const (
	// VectorHNSW uses the HNSW algorithm.
	VectorHNSW VectorAlgorithm = "HNSW"
	// VectorFlat uses the FLAT (brute-force) algorithm.
	VectorFlat VectorAlgorithm = "FLAT"
)

// IndexFieldType enumerates supported FT index field types.
type IndexFieldType int

const (
	// IndexFieldTag is a tag field (filterable attributes).
	IndexFieldTag IndexFieldType = iota
	// IndexFieldVector is a vector field (modality sub-space).
	IndexFieldVector
)

// IndexField describes a single field in an FT index schema.
type IndexField struct {
	Name string
	Type IndexFieldType

	// VECTOR options
	VectorAlgo     VectorAlgorithm
	VectorDim      int
	VectorDistance DistanceMetric
	HNSWM          int
	HNSWEFConstruct int
}

// IndexDefinition describes an FT index over hash documents.
type IndexDefinition struct {
	Name     string
	Prefixes []string
	Fields   []IndexField
}

package config

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// QuestionCatalogKey returns the cache key for the full question catalog.
func (r *CacheKeyStruct) QuestionCatalogKey() string {
	return "questions:catalog"
}

var CacheKey = NewCacheKeyStruct()

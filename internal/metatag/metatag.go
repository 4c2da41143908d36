package metatag

// Decl 是页面上一条 <meta> 声明的原始属性（缺失的属性用空串表示）。
type Decl struct {
	Property string
	Name     string
	Content  string
}

// Index 是 meta 声明的 key -> content 查找表。
type Index map[string]string

// Build 按文档顺序构建索引：key 取 property，缺失时取 name；value 取 content。
// key 或 value 为空的声明直接跳过；同一 key 重复出现时后者覆盖前者。
func Build(decls []Decl) Index {
	idx := make(Index, len(decls))
	for _, d := range decls {
		k := d.Property
		if k == "" {
			k = d.Name
		}
		if k == "" || d.Content == "" {
			continue
		}
		idx[k] = d.Content
	}
	return idx
}

// Lookup 按调用方给出的优先级返回第一个存在的 key 对应的值。
func (idx Index) Lookup(keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := idx[k]; ok && v != "" {
			return v, true
		}
	}
	return "", false
}

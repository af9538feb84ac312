package basicdb

import (
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLicenseHeaderIsNotPackageDoc(t *testing.T) {
	fset := token.NewFileSet()
	checked := 0
	err := filepath.WalkDir(".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != "." && strings.HasPrefix(d.Name(), "_") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		f, err := parser.ParseFile(fset, path, nil, parser.ParseComments|parser.PackageClauseOnly)
		if err != nil {
			return err
		}
		checked++
		if f.Doc != nil {
			assert.NotContains(t, f.Doc.Text(), "Licensed under", "%s: license header is attached to the package clause", path)
		}
		require.NotEmpty(t, f.Comments, "%s: missing license header", path)
		assert.Contains(t, f.Comments[0].Text(), "Apache License", "%s: first comment is not the license header", path)
		return nil
	})
	require.NoError(t, err)
	assert.Greater(t, checked, 30)
}

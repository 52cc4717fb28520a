package runtime

import (
	"strings"

	"github.com/commontoolsinc/loom/pkg/reference"
	"github.com/commontoolsinc/loom/pkg/transaction"
	"github.com/commontoolsinc/loom/pkg/types"
)

// RecipeFile is one source file of a persisted recipe.
type RecipeFile struct {
	Name     string `json:"name"`
	Contents string `json:"contents"`
}

// Recipe is the persisted form of a user-authored computation: the
// entry file, the file set, and optionally the export to run.
type Recipe struct {
	Main       string       `json:"main"`
	Files      []RecipeFile `json:"files"`
	MainExport string       `json:"mainExport,omitempty"`
}

// value renders the recipe's stored JSON form.
func (r Recipe) value() map[string]any {
	files := make([]any, len(r.Files))
	for i, file := range r.Files {
		files[i] = map[string]any{"name": file.Name, "contents": file.Contents}
	}
	out := map[string]any{"main": r.Main, "files": files}
	if r.MainExport != "" {
		out["mainExport"] = r.MainExport
	}
	return out
}

// ID computes the recipe's content-addressed identity: the hash of
// its normalised file set, excluding type declarations.
func (r Recipe) ID() types.EntityID {
	hashed := Recipe{Main: r.Main, MainExport: r.MainExport}
	for _, file := range r.Files {
		if strings.HasSuffix(file.Name, ".d.ts") {
			continue
		}
		hashed.Files = append(hashed.Files, file)
	}
	return entityFromReference(reference.Refer(hashed.value()))
}

func entityFromReference(ref types.Reference) types.EntityID {
	digest := strings.TrimPrefix(string(ref), "ref:")
	if len(digest) > 40 {
		digest = digest[:40]
	}
	return types.NewEntityID(digest)
}

// SaveRecipe stores a recipe as a content-addressed fact and returns
// its id. Saving the same recipe twice is a no-op.
func (r *Runtime) SaveRecipe(space types.Space, recipe Recipe) (types.EntityID, error) {
	id := recipe.ID()
	address := types.Address{Space: space, ID: id, Type: types.ApplicationJSON}

	ok, err := r.EditWithRetry(func(tx *transaction.Transaction) error {
		existing, err := tx.Read(address)
		if err != nil {
			return err
		}
		if existing.Value != nil {
			// Content addressing: an identical record is already here.
			return nil
		}
		_, err = tx.Write(address, recipe.value())
		return err
	})
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &CommitFailedError{Address: address}
	}
	return id, nil
}

// LoadRecipe loads a recipe fact by id.
func (r *Runtime) LoadRecipe(space types.Space, id types.EntityID) (*Recipe, error) {
	tx := r.Edit()
	defer tx.Commit()
	att, err := tx.Read(types.Address{Space: space, ID: id, Type: types.ApplicationJSON})
	if err != nil {
		return nil, err
	}
	object, ok := att.Value.(map[string]any)
	if !ok {
		return nil, &UnknownRecipeError{Space: space, ID: id}
	}
	recipe := &Recipe{}
	recipe.Main, _ = object["main"].(string)
	recipe.MainExport, _ = object["mainExport"].(string)
	if files, ok := object["files"].([]any); ok {
		for _, entry := range files {
			file, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			name, _ := file["name"].(string)
			contents, _ := file["contents"].(string)
			recipe.Files = append(recipe.Files, RecipeFile{Name: name, Contents: contents})
		}
	}
	return recipe, nil
}

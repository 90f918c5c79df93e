package version

// LayerSchemaVersion increments when layer construction changes require
// cached layers to be rebuilt.
//
// Bump for:
//   - Diff/tar format changes (header normalization, whiteout encoding)
//   - Cache key composition changes
//   - Environment prefix layout changes inside the image
//
// Don't bump for:
//   - CLI-only changes
//   - Bug fixes not affecting layer content
const LayerSchemaVersion = 1

const LayerSchemaVersionLabel = "imgforge.layer_schema_version"

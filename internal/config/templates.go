package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Kinds lists the template names accepted by Template.
var Kinds = []string{"link", "layouts"}

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "link":
		return linkTemplate, nil
	case "layouts":
		return layoutsTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const linkTemplate = `[connection]
# listener | connector
role = "listener"
local_address = "127.0.0.1"
local_port = 1234
remote_address = "127.0.0.1"
remote_port = 63156

[session]
connect_timeout = "5s"
write_timeout = "5s"
read_buffer_bytes = 65536
auto_respond = false

[display]
path = "local/display.jsonl"
max_size_mb = 10
max_backups = 3

[layouts]
path = "local/layouts.toml"

[http]
addr = "127.0.0.1:9400"
cors_origins = ["http://localhost:3000"]
# bearer token for control routes; empty leaves them open
token = ""
tls_cert = ""
tls_key = ""

[log]
level = "info"
timestamp = true
no_color = false
file = ""
`

const layoutsTemplate = `[[layouts.HPDH.fields]]
bmp_position = 1
length_type = "fixed"
data_type = "numeric"
justification = "right"
filler = "0"
field_name = "Transaction Code"
default_value = "000000"

[[layouts.HPDH.fields]]
bmp_position = 2
length_type = "variable"
data_type = "alphanumeric"
justification = "left"
filler = " "
field_name = "Primary Account Number"
default_value = ""
`

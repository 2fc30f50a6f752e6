package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const starterManifest = `version: 1

vars:
  app_name: myapp
  app_port: 8080

policy:
  on_failure: halt
  max_retries: 2
  parallelism: 1

actions:
  - id: app-pkg
    kind: package
    params:
      packages:
        - name: nginx

  - id: app-user
    kind: user
    depends_on: [app-pkg]
    params:
      name: "{{ .app_name }}"
      system: true

  - id: app-conf
    kind: file
    depends_on: [app-user]
    params:
      path: /etc/nginx/conf.d/{{ .app_name }}.conf
      content: |
        server {
          listen {{ .app_port }};
          server_name {{ .app_name }};
        }
      mode: "0644"
      backup: true

  - id: app-svc
    kind: service
    depends_on: [app-conf]
    params:
      name: nginx
      state: running
      enabled: true
`

func newInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter manifest",
		Long: `Init writes a commented starter manifest to the --manifest path. It
refuses to overwrite an existing file unless --force is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(manifestPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", manifestPath)
			}

			if err := os.WriteFile(manifestPath, []byte(starterManifest), 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", manifestPath, err)
			}

			fmt.Printf("Wrote starter manifest to %s\n", manifestPath)
			fmt.Println("Next: edit it, then run 'convergo validate' and 'convergo plan'.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing manifest")

	return cmd
}

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wintermelt/minecraft_session_keeper/internal/profiles"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manage stored login profiles",
	Long: `Manage the stored login profiles. A profile holds the refresh token
of a Microsoft account, enabling silent re-login with
msk login --profile NAME.`,
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored profiles",
	Args:  cobra.NoArgs,
	RunE:  runProfilesList,
}

var profilesDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a stored profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfilesDelete,
}

func init() {
	profilesCmd.AddCommand(profilesListCmd)
	profilesCmd.AddCommand(profilesDeleteCmd)
	rootCmd.AddCommand(profilesCmd)
}

func runProfilesList(cmd *cobra.Command, args []string) error {
	store, err := profiles.Open()
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := store.List()
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No profiles stored. Run msk login first.")
		return nil
	}

	for _, p := range list {
		fmt.Printf("%-20s %s  last login %s\n", p.Name, p.UUID, p.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

func runProfilesDelete(cmd *cobra.Command, args []string) error {
	store, err := profiles.Open()
	if err != nil {
		return err
	}
	defer store.Close()

	prof, err := store.GetByName(args[0])
	if err != nil {
		if errors.Is(err, profiles.ErrNotFound) {
			return fmt.Errorf("no profile named %q", args[0])
		}
		return err
	}

	if err := store.Delete(prof.UUID); err != nil {
		return err
	}
	fmt.Printf("Deleted profile %s\n", prof.Name)
	return nil
}

package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"chatline/api"
)

func newProfileCmd(opts *globalOptions) *cobra.Command {
	var (
		update      api.ProfileUpdate
		picturePath string
	)
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show the signed-in profile, or change it with flags",
		Long: "profile prints the current user. Any of the flags sends a profile update; " +
			"fields left out keep their stored values.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if picturePath != "" {
				raw, err := os.ReadFile(picturePath)
				if err != nil {
					return fmt.Errorf("read profile picture: %w", err)
				}
				update.Picture = raw
				update.PictureName = filepath.Base(picturePath)
			}

			a, err := signedIn(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if !hasProfileChanges(update) {
				user, err := a.Client.CurrentUser(cmd.Context())
				if err != nil {
					return fmt.Errorf("fetch profile: %w", err)
				}
				fmt.Fprintln(out, formatProfile(*user))
				return nil
			}

			user, err := a.Session.UpdateProfile(cmd.Context(), update)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "Profile updated")
			fmt.Fprintln(out, formatProfile(*user))
			return nil
		},
	}
	cmd.Flags().StringVar(&update.Username, "username", "", "new username")
	cmd.Flags().StringVar(&update.FirstName, "first-name", "", "new first name")
	cmd.Flags().StringVar(&update.LastName, "last-name", "", "new last name")
	cmd.Flags().StringVar(&update.PhoneNumber, "phone", "", "new phone number")
	cmd.Flags().StringVar(&update.Bio, "bio", "", "new bio")
	cmd.Flags().StringVar(&update.Gender, "gender", "", "new gender")
	cmd.Flags().StringVar(&update.DateOfBirth, "date-of-birth", "", "new date of birth, YYYY-MM-DD")
	cmd.Flags().StringVar(&picturePath, "picture", "", "upload this image as the profile picture")
	return cmd
}

func hasProfileChanges(u api.ProfileUpdate) bool {
	return u.Username != "" || u.FirstName != "" || u.LastName != "" || u.PhoneNumber != "" ||
		u.Bio != "" || u.Gender != "" || u.DateOfBirth != "" || len(u.Picture) > 0
}

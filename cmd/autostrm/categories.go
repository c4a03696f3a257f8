package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

var categoriesCmd = &cobra.Command{
	Use:     "categories",
	Aliases: []string{"category"},
	Short:   "Manage categories and their library roots",
}

var categoriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List categories",
	Args:  cobra.NoArgs,
	RunE:  runCategoriesList,
}

var categoriesSetCmd = &cobra.Command{
	Use:   "set <name> <save-path>",
	Short: "Create a category or change its library root",
	Args:  cobra.ExactArgs(2),
	RunE:  runCategoriesSet,
}

func init() {
	categoriesCmd.AddCommand(categoriesListCmd, categoriesSetCmd)
	rootCmd.AddCommand(categoriesCmd)
}

type categoryRow struct {
	Name     string `json:"name"`
	SavePath string `json:"savePath"`
	Naming   string `json:"naming"`
}

func runCategoriesList(cmd *cobra.Command, _ []string) error {
	a, closeApp, err := openLocal(cmd.Context())
	if err != nil {
		return err
	}
	defer closeApp()

	cats, err := a.manager.Categories(cmd.Context())
	if err != nil {
		return err
	}
	layout, err := a.materializer.Layout(cmd.Context())
	if err != nil {
		return err
	}

	list := make([]categoryRow, 0, len(cats))
	for _, name := range cats.Names() {
		naming := "movie"
		if layout.IsTV(name) {
			naming = "tv"
		}
		list = append(list, categoryRow{Name: name, SavePath: layout.Root(name), Naming: naming})
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, list)
	}
	rows := make([][]string, 0, len(list))
	for _, c := range list {
		rows = append(rows, []string{c.Name, c.Naming, c.SavePath})
	}
	writeTable(out, []string{"NAME", "NAMING", "SAVE PATH"}, rows, nil)
	return nil
}

func runCategoriesSet(cmd *cobra.Command, args []string) error {
	name, savePath := args[0], args[1]
	if !filepath.IsAbs(savePath) {
		return fmt.Errorf("save path must be absolute: %s", savePath)
	}

	a, closeApp, err := openLocal(cmd.Context())
	if err != nil {
		return err
	}
	defer closeApp()

	if err := a.manager.SetCategory(cmd.Context(), name, filepath.Clean(savePath)); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Category %s -> %s\n", name, filepath.Clean(savePath))
	return nil
}

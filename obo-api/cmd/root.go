package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/chcalder/msal-react-obo-aisearch-demo/pkg/config"
)

var (
	cfgFile string
	v       *viper.Viper
)

var rootCmd = &cobra.Command{
	Use:   "obo-api",
	Short: "On-Behalf-Of gateway for Microsoft Graph and Azure AI Search",
	Long: `obo-api sits between a browser SPA and downstream Microsoft APIs. It
exchanges the user's delegated access token via the On-Behalf-Of flow, calls
Microsoft Graph and Azure AI Search on the user's behalf, and applies
group-based security filtering to search results.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	v = config.InitViper("obo-api")
	config.BindFlags(rootCmd, v)
}

func initConfig() {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}
}

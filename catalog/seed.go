/*
seed.go - The built-in production style tree

The tree mirrors what the bot actually ships: top-level categories off the
root, leaves carrying the prompt fragment that is forwarded verbatim to the
generation backend. Titles and descriptions are display text only; the core
never interprets them.
*/
package catalog

// RootID is the id of the main menu node in the seed tree.
const RootID = "root"

// Seed builds the default production catalog. Panics on a validation error
// because a broken seed tree is a programming mistake, caught at startup.
func Seed() *Catalog {
	b := NewBuilder()

	b.Category(RootID, "Main menu", "")

	// Top-level categories
	b.Category("cat_appearance", "Appearance", RootID)
	b.Category("cat_clothes", "Clothes & accessories", RootID)
	b.Category("cat_transform", "Transformations", RootID)
	b.Category("cat_photoset", "Photo shoot", RootID)
	b.Category("cat_locations", "Locations", RootID)
	b.Category("cat_art", "Art effects", RootID)
	b.Category("cat_tools", "Tools", RootID)
	b.Category("cat_text", "Text prompt", RootID)

	// Appearance
	b.Leaf("app_soft_glam", "Soft glam",
		"Gentle makeup, soft light and a subtle skin glow.",
		"soft glam portrait, subtle makeup, smooth skin retouch, warm soft lighting, gentle cinematic glow, beauty photography",
		"cat_appearance")
	b.Leaf("app_cinematic", "Cinematic portrait",
		"Contrasty key light and depth, like a film still.",
		"cinematic portrait, dramatic key light, moody shadows, rich contrast, film still look",
		"cat_appearance")
	b.Leaf("app_retro90", "Retro 90s",
		"Light grain, warm tint, on-camera flash and old-photo vibe.",
		"retro 90s aesthetic, on-camera flash, slight grain, warm tones, nostalgic vibe",
		"cat_appearance")
	b.Leaf("app_anime", "Anime portrait",
		"Anime stylization: expressive eyes, soft shading, clean outlines.",
		"anime style portrait, clean lines, large expressive eyes, soft shading, pastel colors",
		"cat_appearance")

	// Clothes & accessories
	b.Leaf("cl_street", "Streetwear",
		"Hoodie, sneakers, cap - modern urban style.",
		"modern streetwear outfit, hoodie, sneakers, cap, urban background, casual cool vibe",
		"cat_clothes")
	b.Leaf("cl_business", "Business look",
		"Sharp suit and a clean backdrop - the avatar for work.",
		"business outfit, elegant suit or blazer, clean office background, professional portrait",
		"cat_clothes")
	b.Leaf("cl_party", "Party",
		"Glitter, bold makeup and club lights.",
		"party outfit, glitter details, colorful club lights, dynamic fun atmosphere",
		"cat_clothes")
	b.Leaf("cl_fantasy", "Fantasy costume",
		"Cloaks, light armor or a magical outfit.",
		"fantasy costume, cloak or light armor, magical accessories, dramatic fantasy background",
		"cat_clothes")

	// Transformations
	b.Leaf("tf_superhero", "Superhero",
		"Comic-movie aesthetic: hero suit, dramatic light, city skyline.",
		"superhero style costume, dynamic pose, dramatic lighting, city skyline background",
		"cat_transform")
	b.Leaf("tf_cyberpunk", "Cyberpunk",
		"Neon, rain, signs and reflections.",
		"cyberpunk city, neon lights, rainy reflections, futuristic tech details, moody atmosphere",
		"cat_transform")
	b.Leaf("tf_elf", "Elven style",
		"Light fantasy with pointed ears and soft magical light.",
		"elegant elf character, subtle pointed ears, forest fantasy background, soft magical light",
		"cat_transform")
	b.Leaf("tf_cartoon", "Cartoon hero",
		"Simplified shapes and bright colors of a cartoon character.",
		"cartoon character style, simplified shapes, bold colors, playful expression",
		"cat_transform")

	// Photo shoot
	b.Leaf("ps_studio", "Studio portrait",
		"Clean backdrop, softbox light, light retouch.",
		"studio portrait, softbox lighting, clean backdrop, professional retouch",
		"cat_photoset")
	b.Leaf("ps_film", "Film look",
		"Grain, vignette, muted colors and a vintage mood.",
		"film photography look, visible grain, subtle vignette, muted tones, nostalgic mood",
		"cat_photoset")
	b.Leaf("ps_bw", "Black & white classic",
		"High-contrast monochrome portrait focused on light and emotion.",
		"black and white portrait, strong contrast, dramatic lighting, timeless classic look",
		"cat_photoset")

	// Locations
	b.Leaf("loc_beach", "Sea & palms",
		"Sand, sunset and palm trees - the perfect vacation shot.",
		"tropical beach, palm trees, sunset sky, soft golden light, vacation vibe",
		"cat_locations")
	b.Leaf("loc_mountains", "Mountains",
		"Rocky peaks, mist and a feeling of freedom.",
		"mountain landscape, misty peaks, cool air, natural light, adventure mood",
		"cat_locations")
	b.Leaf("loc_citynight", "Night megacity",
		"City lights and reflections on wet asphalt.",
		"big city at night, neon signs, reflections on wet asphalt, cinematic atmosphere",
		"cat_locations")
	b.Leaf("loc_space", "Space",
		"Zero gravity against stars and distant galaxies.",
		"space background, stars, nebulae, subtle zero gravity effect, sci-fi feel",
		"cat_locations")

	// Art effects
	b.Leaf("art_oil", "Oil painting",
		"Visible brush strokes in the manner of classical painting.",
		"oil painting portrait, visible brush strokes, rich textures, gallery lighting",
		"cat_art")
	b.Leaf("art_watercolor", "Watercolor",
		"Soft watercolor with blurred edges and a gentle palette.",
		"watercolor portrait, flowing paint, soft edges, pastel colors, paper texture",
		"cat_art")
	b.Leaf("art_neon", "Neon art",
		"Glowing outlines on a dark background.",
		"neon outline art, glowing strokes, dark background, cyber aesthetic",
		"cat_art")
	b.Leaf("art_pencil", "Pencil sketch",
		"Monochrome hand-drawn sketch with paper texture.",
		"hand-drawn pencil sketch portrait, crosshatching, paper grain texture",
		"cat_art")

	// Tools
	b.Leaf("tool_auto_style", "Auto style",
		"The model picks a flattering style for the photo on its own.",
		"choose the most flattering and trendy style for this person automatically, keep it realistic and stylish",
		"cat_tools")
	b.Leaf("tool_hd_upscale", "Enhance quality",
		"Careful sharpening and detail recovery without heavy artifacts.",
		"high resolution upscaling, sharpen important details, reduce noise, keep natural skin texture",
		"cat_tools")
	b.Leaf("tool_bg_remove", "Remove background",
		"Replaces a busy background with a soft studio gradient.",
		"remove busy background and replace with smooth soft gradient studio backdrop",
		"cat_tools")

	// Text prompt
	b.Leaf("text_simple", "Plain prompt",
		"You describe the idea in the photo caption; it is applied as-is.",
		"follow the additional user text instructions from the caption exactly but keep the style realistic",
		"cat_text")
	b.Leaf("text_style", "Styled prompt",
		"Your caption is treated as detailed art direction.",
		"interpret the caption as detailed art-direction and create a stylish, visually strong portrait",
		"cat_text")

	c, err := b.Build()
	if err != nil {
		panic("catalog seed is invalid: " + err.Error())
	}
	return c
}
